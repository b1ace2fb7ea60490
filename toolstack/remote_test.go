package toolstack

import (
	"context"
	"encoding/json"
	"iter"
	"testing"

	"llmcore/llm"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemoteSession struct {
	tools      []*mcppkg.Tool
	listErr    error
	callResult *mcppkg.CallToolResult
	callErr    error
	lastCall   *mcppkg.CallToolParams
}

func (f *fakeRemoteSession) Tools(ctx context.Context, params *mcppkg.ListToolsParams) iter.Seq2[*mcppkg.Tool, error] {
	return func(yield func(*mcppkg.Tool, error) bool) {
		if f.listErr != nil {
			yield(nil, f.listErr)
			return
		}
		for _, t := range f.tools {
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (f *fakeRemoteSession) CallTool(ctx context.Context, params *mcppkg.CallToolParams) (*mcppkg.CallToolResult, error) {
	f.lastCall = params
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.callResult, nil
}

func (f *fakeRemoteSession) Close() error { return nil }

func TestRemoteProviderGetDefinitionsQualifiesNames(t *testing.T) {
	sess := &fakeRemoteSession{tools: []*mcppkg.Tool{
		{Name: "search", Description: "web search"},
	}}
	p := NewRemoteProvider("web", sess)
	defs, err := p.GetDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "web_search", defs[0].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])
}

func TestRemoteProviderExecuteForwardsCallAndExtractsText(t *testing.T) {
	sess := &fakeRemoteSession{
		tools: []*mcppkg.Tool{{Name: "search", Description: "web search"}},
		callResult: &mcppkg.CallToolResult{
			Content: []mcppkg.Content{&mcppkg.TextContent{Text: "result text"}},
		},
	}
	p := NewRemoteProvider("web", sess)
	_, err := p.GetDefinitions(context.Background())
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), "web_search", json.RawMessage(`{"q":"go"}`))
	require.NoError(t, err)
	assert.Equal(t, "result text", res.Text)
	require.NotNil(t, sess.lastCall)
	assert.Equal(t, "search", sess.lastCall.Name)
}

func TestRemoteProviderExecuteUnknownToolIsToolNotFound(t *testing.T) {
	sess := &fakeRemoteSession{}
	p := NewRemoteProvider("web", sess)
	_, err := p.Execute(context.Background(), "web_search", json.RawMessage(`{}`))
	require.Error(t, err)
	var e *llm.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, llm.KindToolNotFound, e.Kind)
}

func TestRemoteProviderExecuteErrorResultSurfacesText(t *testing.T) {
	sess := &fakeRemoteSession{
		tools: []*mcppkg.Tool{{Name: "search"}},
		callResult: &mcppkg.CallToolResult{
			IsError: true,
			Content: []mcppkg.Content{&mcppkg.TextContent{Text: "bad query"}},
		},
	}
	p := NewRemoteProvider("web", sess)
	_, err := p.GetDefinitions(context.Background())
	require.NoError(t, err)
	_, err = p.Execute(context.Background(), "web_search", json.RawMessage(`{}`))
	require.Error(t, err)
}
