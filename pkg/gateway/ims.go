package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cuemby/mantle/pkg/types"
)

type imsLink struct {
	Path string `json:"path"`
	Etag string `json:"etag"`
	Type string `json:"type"`
}

type imsImage struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Created string   `json:"created"`
	Link    *imsLink `json:"link"`
}

func imageFromIMS(i imsImage) types.Image {
	out := types.Image{ID: i.ID, Name: i.Name, Created: i.Created}
	if i.Link != nil {
		out.LinkPath = i.Link.Path
		out.LinkEtag = i.Link.Etag
	}
	return out
}

// ListImages returns every image in the registry
func (c *Client) ListImages(ctx context.Context) ([]types.Image, error) {
	var wire []imsImage
	if err := c.do(ctx, ServiceIMS, "list images", http.MethodGet, "/ims/v3/images", nil, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]types.Image, 0, len(wire))
	for _, i := range wire {
		out = append(out, imageFromIMS(i))
	}
	return out, nil
}

// GetImage returns one image by id
func (c *Client) GetImage(ctx context.Context, id string) (*types.Image, error) {
	var wire imsImage
	if err := c.do(ctx, ServiceIMS, "get image", http.MethodGet, "/ims/v3/images/"+url.PathEscape(id), nil, nil, &wire); err != nil {
		return nil, err
	}
	img := imageFromIMS(wire)
	return &img, nil
}
