package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cuemby/mantle/pkg/types"
)

type bssBootParameters struct {
	Hosts  []string `json:"hosts"`
	Kernel string   `json:"kernel"`
	Initrd string   `json:"initrd"`
	Params string   `json:"params"`
}

// GetBootParameters returns the boot parameters of the given hosts
func (c *Client) GetBootParameters(ctx context.Context, hosts []string) ([]types.BootParameters, error) {
	query := url.Values{}
	for _, h := range hosts {
		query.Add("name", h)
	}

	var wire []bssBootParameters
	if err := c.do(ctx, ServiceBSS, "get boot parameters", http.MethodGet, "/bss/boot/v1/bootparameters", query, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]types.BootParameters, 0, len(wire))
	for _, b := range wire {
		out = append(out, types.BootParameters{Hosts: b.Hosts, Kernel: b.Kernel, Initrd: b.Initrd, Params: b.Params})
	}
	return out, nil
}
