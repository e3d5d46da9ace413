package candid

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aviate-labs/agent-go"
	"github.com/aviate-labs/agent-go/principal"
)

// InterfaceMethod is the query a canister answers with its own Candid
// interface description.
const InterfaceMethod = "__get_candid_interface_tmp_hack"

// Querier fetches the textual interface description of a canister
type Querier interface {
	// CandidInterface calls the interface query on canisterID
	CandidInterface(ctx context.Context, canisterID string) (string, error)
}

// AgentQuerier implements Querier with an anonymous IC agent
type AgentQuerier struct {
	agent *agent.Agent
}

// NewAgentQuerier creates an anonymous, read-only agent bound to host
func NewAgentQuerier(host string) (*AgentQuerier, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host %q: %w", host, err)
	}

	// No identity: requests are sent by the anonymous principal.
	a, err := agent.New(agent.Config{
		ClientConfig: &agent.ClientConfig{Host: u},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return &AgentQuerier{agent: a}, nil
}

// CandidInterface performs the interface query. The agent call itself is
// not cancellable, so ctx only bounds how long the caller waits for it.
func (q *AgentQuerier) CandidInterface(ctx context.Context, canisterID string) (string, error) {
	id, err := principal.Decode(canisterID)
	if err != nil {
		return "", fmt.Errorf("invalid canister id %q: %w", canisterID, err)
	}

	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)

	go func() {
		var text string
		err := q.agent.Query(id, InterfaceMethod, []any{}, []any{&text})
		ch <- reply{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("query %s on %s: %w", InterfaceMethod, canisterID, r.err)
		}
		return r.text, nil
	}
}
