package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cuemby/mantle/pkg/types"
)

type pcsLocation struct {
	Xname string `json:"xname"`
}

type pcsTransitionRequest struct {
	Operation string        `json:"operation"`
	Location  []pcsLocation `json:"location"`
}

type pcsTaskCounts struct {
	Total       int `json:"total"`
	New         int `json:"new"`
	InProgress  int `json:"in-progress"`
	Failed      int `json:"failed"`
	Succeeded   int `json:"succeeded"`
	Unsupported int `json:"un-supported"`
}

type pcsTask struct {
	Xname                 string `json:"xname"`
	TaskStatus            string `json:"taskStatus"`
	TaskStatusDescription string `json:"taskStatusDescription"`
	Error                 string `json:"error"`
}

type pcsTransition struct {
	TransitionID     string        `json:"transitionID"`
	Operation        string        `json:"operation"`
	TransitionStatus string        `json:"transitionStatus"`
	TaskCounts       pcsTaskCounts `json:"taskCounts"`
	Tasks            []pcsTask     `json:"tasks"`
}

type pcsPowerStatus struct {
	Xname      string `json:"xname"`
	PowerState string `json:"powerState"`
	Error      string `json:"error"`
}

type pcsPowerStatusList struct {
	Status []pcsPowerStatus `json:"status"`
}

func transitionFromPCS(t pcsTransition) *types.Transition {
	out := &types.Transition{
		ID:        t.TransitionID,
		Operation: types.PowerOperation(t.Operation),
		Status:    types.TransitionStatus(t.TransitionStatus),
		TaskCounts: types.TaskCounts{
			Total:       t.TaskCounts.Total,
			New:         t.TaskCounts.New,
			InProgress:  t.TaskCounts.InProgress,
			Failed:      t.TaskCounts.Failed,
			Succeeded:   t.TaskCounts.Succeeded,
			Unsupported: t.TaskCounts.Unsupported,
		},
	}
	for _, task := range t.Tasks {
		out.Location = append(out.Location, task.Xname)
		out.Tasks = append(out.Tasks, types.TransitionTask{
			Xname:       task.Xname,
			Status:      task.TaskStatus,
			Description: task.TaskStatusDescription,
			Error:       task.Error,
		})
	}
	return out
}

// SubmitTransition asks the power-control service to run op on nodes. The
// returned transition carries the handle to poll.
func (c *Client) SubmitTransition(ctx context.Context, op types.PowerOperation, nodes []string) (*types.Transition, error) {
	if !types.ValidPowerOperation(op) {
		return nil, fmt.Errorf("unsupported power operation %q", op)
	}

	body := pcsTransitionRequest{Operation: string(op)}
	for _, n := range nodes {
		body.Location = append(body.Location, pcsLocation{Xname: n})
	}

	var wire pcsTransition
	if err := c.do(ctx, ServicePCS, "submit transition", http.MethodPost, "/power-control/v1/transitions", nil, body, &wire); err != nil {
		return nil, err
	}
	t := transitionFromPCS(wire)
	if t.Operation == "" {
		t.Operation = op
	}
	if len(t.Location) == 0 {
		t.Location = append([]string{}, nodes...)
	}
	if t.Status == "" {
		t.Status = types.TransitionNew
	}
	return t, nil
}

// GetTransition reads a transition by id
func (c *Client) GetTransition(ctx context.Context, id string) (*types.Transition, error) {
	var wire pcsTransition
	path := "/power-control/v1/transitions/" + url.PathEscape(id)
	if err := c.do(ctx, ServicePCS, "get transition", http.MethodGet, path, nil, nil, &wire); err != nil {
		return nil, err
	}
	return transitionFromPCS(wire), nil
}

// GetPowerStatus reads the power state of nodes from the power-control service
func (c *Client) GetPowerStatus(ctx context.Context, nodes []string) (*types.PowerStatus, error) {
	query := url.Values{}
	for _, n := range nodes {
		query.Add("xname", n)
	}

	var wire pcsPowerStatusList
	if err := c.do(ctx, ServicePCS, "power status", http.MethodGet, "/power-control/v1/power-status", query, nil, &wire); err != nil {
		return nil, err
	}

	out := &types.PowerStatus{On: []string{}, Off: []string{}}
	for _, s := range wire.Status {
		switch types.PowerState(s.PowerState) {
		case types.PowerStateOn:
			out.On = append(out.On, s.Xname)
		case types.PowerStateOff:
			out.Off = append(out.Off, s.Xname)
		default:
			out.Undefined = append(out.Undefined, s.Xname)
		}
	}
	return out, nil
}
