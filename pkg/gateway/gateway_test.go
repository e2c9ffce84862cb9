package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuemby/mantle/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, versions Versions, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{BaseURL: server.URL + "/apis", Token: "secret", Versions: versions})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing base url", cfg: Config{}, wantErr: "base URL is required"},
		{name: "bad cfs version", cfg: Config{BaseURL: "https://api", Versions: Versions{CFS: "v9"}}, wantErr: "cfs api version"},
		{name: "bad bos version", cfg: Config{BaseURL: "https://api", Versions: Versions{BOS: "v3"}}, wantErr: "bos api version"},
		{name: "bad proxy", cfg: Config{BaseURL: "https://api", ProxyURL: "://nope"}, wantErr: "invalid proxy URL"},
		{name: "missing CA bundle", cfg: Config{BaseURL: "https://api", CACertFile: "/nonexistent/ca.pem"}, wantErr: "CA bundle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_DefaultVersions(t *testing.T) {
	c, err := New(Config{BaseURL: "https://api.example.com/apis/"})
	require.NoError(t, err)

	assert.Equal(t, Versions{CFS: "v3", BOS: "v2"}, c.Versions())
	assert.NotNil(t, c.HTTPClient())
	assert.Equal(t, "https://api.example.com/apis/smd/hsm/v2/groups", c.url("/smd/hsm/v2/groups", nil))
}

func TestClient_SendsCredentialAndRequestID(t *testing.T) {
	var auth, requestID, path string
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		requestID = r.Header.Get("X-Request-ID")
		path = r.URL.Path
		writeJSON(w, []any{})
	})

	_, err := c.ListGroups(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.NotEmpty(t, requestID)
	assert.Equal(t, "/apis/smd/hsm/v2/groups", path)
}

func TestClient_ServiceErrorKeepsPayloadVerbatim(t *testing.T) {
	problem := `{"type":"about:blank","title":"Bad Request","status":400,"detail":"xname x9 is not valid"}`
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(problem))
	})

	_, err := c.ListGroups(context.Background())
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, ServiceHSM, svcErr.Service)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	assert.Equal(t, problem, string(svcErr.Payload))
	assert.Contains(t, err.Error(), "xname x9 is not valid")

	p := svcErr.Problem()
	require.NotNil(t, p)
	assert.Equal(t, "xname x9 is not valid", p.Detail)
}

func TestClient_ServiceErrorPlainText(t *testing.T) {
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such image"))
	})

	_, err := c.GetImage(context.Background(), "abc")
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.True(t, svcErr.NotFound())
	assert.Nil(t, svcErr.Problem())
	assert.Contains(t, err.Error(), "no such image")
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := server.URL
	server.Close()

	c, err := New(Config{BaseURL: base})
	require.NoError(t, err)

	_, err = c.ListImages(context.Background())
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, ServiceIMS, transportErr.Service)
}

func TestClient_CancelledContext(t *testing.T) {
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListGroups(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestListGroups_Adapter(t *testing.T) {
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"label":"compute","description":"all compute","members":{"ids":["x1","x2"]}},
			{"label":"empty","members":{}}
		]`))
	})

	groups, err := c.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"x1", "x2"}, groups[0].Members)
	assert.Equal(t, []string{}, groups[1].Members)
}

func TestGetNodeStates(t *testing.T) {
	var body map[string][]string
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"Components":[{"ID":"x1","State":"Ready","Role":"Compute","NID":1}]}`))
	})

	states, err := c.GetNodeStates(context.Background(), []string{"x1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x1"}, body["ComponentIDs"])
	require.Len(t, states, 1)
	assert.Equal(t, "Ready", states[0].State)
	assert.True(t, states[0].Enabled)
}

func TestListConfigurations_Versions(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		path     string
		response string
	}{
		{
			name:     "v2 bare array",
			version:  "v2",
			path:     "/apis/cfs/v2/configurations",
			response: `[{"name":"compute-1","lastUpdated":"2024-01-02T00:00:00Z","layers":[{"cloneUrl":"https://vcs/c.git","playbook":"site.yml"}]}]`,
		},
		{
			name:     "v3 wrapped",
			version:  "v3",
			path:     "/apis/cfs/v3/configurations",
			response: `{"configurations":[{"name":"compute-1","last_updated":"2024-01-02T00:00:00Z","layers":[{"clone_url":"https://vcs/c.git","playbook":"site.yml"}]}],"next":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, Versions{CFS: tt.version}, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.path, r.URL.Path)
				_, _ = w.Write([]byte(tt.response))
			})

			cfgs, err := c.ListConfigurations(context.Background())
			require.NoError(t, err)
			require.Len(t, cfgs, 1)
			assert.Equal(t, "compute-1", cfgs[0].Name)
			assert.Equal(t, "2024-01-02T00:00:00Z", cfgs[0].LastUpdated)
			assert.Equal(t, "https://vcs/c.git", cfgs[0].Layers[0].CloneURL)
		})
	}
}

func TestListSessions_FiltersAndAdapters(t *testing.T) {
	var query string
	c := newTestClient(t, Versions{CFS: "v3"}, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"sessions":[
			{"name":"batcher-1","configuration":{"name":"cfg-a"},"ansible":{"limit":"x1,x2"},"target":{"definition":"dynamic"},
			 "status":{"session":{"status":"complete","succeeded":"true","start_time":"t0"}}},
			{"name":"image-build","configuration":{"name":"cfg-b"},"target":{"definition":"image","groups":[{"name":"Compute","members":["img-1"]}]},
			 "status":{"artifacts":[{"image_id":"img-1","result_id":"res-1","type":"ims_customized_image"}],"session":{"status":"running"}}}
		]}`))
	})

	sessions, err := c.ListSessions(context.Background(), SessionFilter{MaxAge: "1d", Status: types.SessionStateComplete, NameContains: "batcher"})
	require.NoError(t, err)
	assert.Contains(t, query, "max_age=1d")
	assert.Contains(t, query, "status=complete")
	require.Len(t, sessions, 1)
	assert.Equal(t, "batcher-1", sessions[0].Name)
	assert.True(t, sessions[0].Succeeded())
	assert.Equal(t, []string{"x1", "x2"}, sessions[0].TargetNames())

	all, err := c.ListSessions(context.Background(), SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[1].IsGroupTarget())
	assert.Equal(t, "res-1", all[1].FirstResultID())
}

func TestCreateSession_V2Body(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, Versions{CFS: "v2"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apis/cfs/v2/sessions", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"name":"s1","configuration":{"name":"cfg-a"},"status":{"session":{"status":"pending"}}}`))
	})

	s, err := c.CreateSession(context.Background(), SessionSpec{Name: "s1", ConfigurationName: "cfg-a", AnsibleLimit: "x1"})
	require.NoError(t, err)
	assert.Equal(t, "cfg-a", body["configurationName"])
	assert.Equal(t, "x1", body["ansibleLimit"])
	assert.NotContains(t, body, "target")
	assert.Equal(t, types.SessionStatePending, s.Status.Status)
}

func TestGetComponents_BatchQuery(t *testing.T) {
	c := newTestClient(t, Versions{CFS: "v3"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "x1,x2", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"components":[{"id":"x1","desired_config":"cfg-a","error_count":3,"retry_policy":3},{"id":"x2","desired_config":"cfg-a"}]}`))
	})

	comps, err := c.GetComponents(context.Background(), []string{"x1", "x2"})
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.True(t, comps[0].RetriesExhausted())
	assert.False(t, comps[1].RetriesExhausted())
}

func TestPatchComponents_SendsOnlyIntendedFields(t *testing.T) {
	tests := []struct {
		version    string
		retryKey   string
		errorKey   string
		desiredKey string
		response   string
	}{
		{version: "v2", retryKey: "retryPolicy", errorKey: "errorCount", desiredKey: "desiredConfig", response: `[{"id":"x1","desiredConfig":"cfg","retryPolicy":3}]`},
		{version: "v3", retryKey: "retry_policy", errorKey: "error_count", desiredKey: "desired_config", response: `{"components":[{"id":"x1","desired_config":"cfg","retry_policy":3}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			var body []map[string]any
			c := newTestClient(t, Versions{CFS: tt.version}, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPatch, r.Method)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				_, _ = w.Write([]byte(tt.response))
			})

			enabled := true
			out, err := c.PatchComponents(context.Background(), []types.Component{
				{ID: "x1", DesiredConfig: "cfg", Enabled: &enabled},
			})
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, 3, out[0].RetryPolicy)

			require.Len(t, body, 1)
			assert.NotContains(t, body[0], tt.retryKey)
			assert.Equal(t, float64(0), body[0][tt.errorKey])
			assert.Equal(t, "cfg", body[0][tt.desiredKey])
			assert.Equal(t, true, body[0]["enabled"])
		})
	}
}

func TestListBootTemplates_V1ConfigurationFallback(t *testing.T) {
	c := newTestClient(t, Versions{BOS: "v1"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apis/bos/v1/sessiontemplate", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"name":"top","cfs_configuration":"cfg-top","boot_sets":{"compute":{"path":"s3://boot-images/abc/manifest.json","node_groups":["Compute"]}}},
			{"name":"nested","cfs":{"configuration":"cfg-nested"},"boot_sets":{}}
		]`))
	})

	templates, err := c.ListBootTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "cfg-top", templates[0].ConfigurationName)
	assert.Equal(t, []string{"Compute"}, templates[0].BootSets["compute"].Target())
	assert.Equal(t, "cfg-nested", templates[1].ConfigurationName)
}

func TestTransitions(t *testing.T) {
	var submitted pcsTransitionRequest
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/apis/power-control/v1/transitions":
			_ = json.NewDecoder(r.Body).Decode(&submitted)
			_, _ = w.Write([]byte(`{"transitionID":"t-1","operation":"on"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/apis/power-control/v1/transitions/t-1":
			_, _ = w.Write([]byte(`{"transitionID":"t-1","operation":"on","transitionStatus":"completed",
				"taskCounts":{"total":2,"new":0,"in-progress":0,"failed":1,"succeeded":1,"un-supported":0},
				"tasks":[{"xname":"x1","taskStatus":"succeeded"},{"xname":"x2","taskStatus":"failed","error":"BMC unreachable"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	tr, err := c.SubmitTransition(context.Background(), types.PowerOn, []string{"x1", "x2"})
	require.NoError(t, err)
	assert.Equal(t, "t-1", tr.ID)
	assert.Equal(t, types.TransitionNew, tr.Status)
	assert.Equal(t, "on", submitted.Operation)
	assert.Len(t, submitted.Location, 2)

	tr, err = c.GetTransition(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, tr.Completed())
	assert.True(t, tr.PartialFailure())
	assert.Equal(t, []string{"x2"}, tr.FailedNodes())
}

func TestSubmitTransition_RejectsUnknownOperation(t *testing.T) {
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.SubmitTransition(context.Background(), "explode", []string{"x1"})
	require.Error(t, err)
}

func TestPowerStatus(t *testing.T) {
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"x1", "x2", "x3"}, r.URL.Query()["xname"])
		_, _ = w.Write([]byte(`{"status":[{"xname":"x1","powerState":"on"},{"xname":"x2","powerState":"off"},{"xname":"x3","powerState":"undefined"}]}`))
	})

	status, err := c.GetPowerStatus(context.Background(), []string{"x1", "x2", "x3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x1"}, status.On)
	assert.Equal(t, []string{"x2"}, status.Off)
	assert.Equal(t, []string{"x3"}, status.Undefined)
}

func TestLegacyPower(t *testing.T) {
	var calls []string
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		payload, _ := io.ReadAll(r.Body)
		switch {
		case strings.HasSuffix(r.URL.Path, "/xname_on"):
			assert.Contains(t, string(payload), `"reason":"maintenance"`)
			_, _ = w.Write([]byte(`{"e":0,"err_msg":""}`))
		case strings.HasSuffix(r.URL.Path, "/xname_off") && strings.Contains(string(payload), "x9"):
			assert.NotContains(t, string(payload), `"force"`)
			_, _ = w.Write([]byte(`{"e":-1,"err_msg":"Invalid xname x9"}`))
		case strings.HasSuffix(r.URL.Path, "/xname_off"):
			assert.Contains(t, string(payload), `"force":true`)
			_, _ = w.Write([]byte(`{"e":0}`))
		case strings.HasSuffix(r.URL.Path, "/get_xname_status"):
			_, _ = w.Write([]byte(`{"e":0,"on":["x1"]}`))
		}
	})
	lp := c.LegacyPower("maintenance")

	require.NoError(t, lp.SetPower(context.Background(), types.PowerStateOn, []string{"x1"}))

	err := lp.SetPower(context.Background(), types.PowerStateOff, []string{"x9"})
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Contains(t, err.Error(), "Invalid xname x9")

	require.NoError(t, lp.SetPowerForced(context.Background(), types.PowerStateOff, []string{"x2"}))

	status, err := lp.GetPowerStatus(context.Background(), []string{"x1", "x2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x1"}, status.On)
	assert.Equal(t, []string{}, status.Off)
	assert.Equal(t, []string{"x2"}, status.Mismatched(types.PowerStateOn, []string{"x1", "x2"}))

	assert.Equal(t, []string{
		"/apis/capmc/capmc/v1/xname_on",
		"/apis/capmc/capmc/v1/xname_off",
		"/apis/capmc/capmc/v1/xname_off",
		"/apis/capmc/capmc/v1/get_xname_status",
	}, calls)

	require.Error(t, lp.SetPower(context.Background(), types.PowerStateUndefined, []string{"x1"}))
}

func TestBootParametersAndImages(t *testing.T) {
	c := newTestClient(t, Versions{}, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/apis/bss/boot/v1/bootparameters":
			assert.Equal(t, []string{"x1"}, r.URL.Query()["name"])
			_, _ = w.Write([]byte(`[{"hosts":["x1"],"kernel":"s3://boot-images/img-1/kernel"}]`))
		case "/apis/ims/v3/images":
			_, _ = w.Write([]byte(`[{"id":"img-1","name":"compute","created":"2024-01-01","link":{"path":"s3://boot-images/img-1/manifest.json","etag":"e"}}]`))
		}
	})

	params, err := c.GetBootParameters(context.Background(), []string{"x1"})
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "img-1", params[0].ImageID())

	images, err := c.ListImages(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "s3://boot-images/img-1/manifest.json", images[0].LinkPath)
}

func TestEndpoints(t *testing.T) {
	c, err := New(Config{BaseURL: "https://api/apis", Versions: Versions{BOS: "v1"}})
	require.NoError(t, err)

	services := map[string]string{}
	for _, e := range c.Endpoints() {
		services[e.Service] = e.URL
	}
	assert.Len(t, services, 6)
	assert.Equal(t, "https://api/apis/bos/v1", services[ServiceBOS])
}
