package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/villasnode/villasnode-go/internal/sample"
)

// NGSIType is an HTTP client node type talking to a FIWARE/OMA NGSI context
// broker, grounded on server/src/ngsi.c's updateContext request shape:
// append on open, update on every write, delete on close. This port speaks
// the NGSIv2 entity attribute shape over net/http + encoding/json rather
// than libcurl + jansson.
type NGSIType struct{}

func init() { Register(&NGSIType{}) }

func (*NGSIType) Name() string { return "ngsi" }

type ngsiState struct {
	mu sync.Mutex

	endpoint string
	entityID string
	attrName string

	client *http.Client
	opened bool
}

func (*NGSIType) Instantiate(name string, config map[string]interface{}) (*Node, error) {
	st := &ngsiState{client: &http.Client{Timeout: 5 * time.Second}}

	endpoint, _ := config["endpoint"].(string)
	if endpoint == "" {
		return nil, fmt.Errorf("ngsi node %s: endpoint required", name)
	}
	st.endpoint = endpoint

	st.entityID, _ = config["entity_id"].(string)
	if st.entityID == "" {
		st.entityID = "villasnode-" + uuid.New().String()
	}
	st.attrName, _ = config["attribute"].(string)
	if st.attrName == "" {
		st.attrName = "value"
	}

	return NewNode(name, &NGSIType{}, st), nil
}

type ngsiAttribute struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

type ngsiEntity struct {
	ID         string                   `json:"id"`
	Type       string                   `json:"type"`
	Attributes map[string]ngsiAttribute `json:"-"`
}

func (*NGSIType) Start(ctx context.Context, n *Node) error {
	st := n.State.(*ngsiState)
	st.mu.Lock()
	defer st.mu.Unlock()

	body := map[string]interface{}{
		"id":   st.entityID,
		"type": "VillasSample",
	}
	if err := st.request(ctx, http.MethodPost, "/v2/entities", body); err != nil {
		return fmt.Errorf("ngsi node %s: create entity: %w", n.Name(), err)
	}
	st.opened = true
	return nil
}

func (*NGSIType) Stop(n *Node) error {
	st := n.State.(*ngsiState)
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.opened {
		return nil
	}
	path := fmt.Sprintf("/v2/entities/%s", st.entityID)
	if err := st.request(context.Background(), http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("ngsi node %s: delete entity: %w", n.Name(), err)
	}
	st.opened = false
	return nil
}

func (*NGSIType) Write(ctx context.Context, n *Node, in []*sample.Sample, count int) (int, error) {
	st := n.State.(*ngsiState)
	st.mu.Lock()
	defer st.mu.Unlock()

	written := 0
	for i := 0; i < count && i < len(in); i++ {
		s := in[i]
		values := make([]float64, s.Length)
		for j := 0; j < s.Length; j++ {
			values[j] = valueAsFloat(s.Values[j])
		}
		body := map[string]interface{}{
			st.attrName: ngsiAttribute{Type: "Array", Value: values},
		}
		path := fmt.Sprintf("/v2/entities/%s/attrs", st.entityID)
		if err := st.request(ctx, http.MethodPatch, path, body); err != nil {
			return written, fmt.Errorf("ngsi node %s: update attrs: %w", n.Name(), err)
		}
		written++
	}
	return written, nil
}

func (st *ngsiState) request(ctx context.Context, method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, st.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := st.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
