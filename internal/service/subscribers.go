package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/CodeSwarm/internal/port/messagequeue"
)

// StartSubscribers registers the coordinator's handlers for the worker
// protocol subjects. Workers request write access, report file
// modifications, release locks, and deliver execution results over the
// queue; all replies go out on agents.write.response.
func (c *Coordinator) StartSubscribers(ctx context.Context) error {
	subs := map[string]messagequeue.Handler{
		messagequeue.SubjectAgentWriteRequest: c.handleWriteRequest,
		messagequeue.SubjectAgentWriteRelease: c.handleWriteRelease,
		messagequeue.SubjectAgentFileModified: c.handleFileModified,
		messagequeue.SubjectAgentComplete:     c.handleAgentComplete,
	}
	for subject, handler := range subs {
		if _, err := c.queue.Subscribe(ctx, subject, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
	}
	slog.Info("coordinator subscribers started", "subjects", len(subs))
	return nil
}

func (c *Coordinator) handleWriteRequest(ctx context.Context, subject string, data []byte) error {
	var req messagequeue.WriteRequestPayload
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("unmarshal write request: %w", err)
	}

	resp := messagequeue.WriteResponsePayload{
		AgentID:   req.AgentID,
		RequestID: req.RequestID,
		Path:      req.Path,
	}

	decision, err := c.scopes.RequestWriteAccess(ctx, req.AgentID, req.Path)
	if err != nil {
		resp.Reason = err.Error()
	} else {
		resp.Granted = decision.Granted
		resp.Conflict = decision.Conflict
		resp.Reason = decision.Reason
		resp.Path = decision.Path
	}

	c.publishJSON(ctx, messagequeue.SubjectAgentWriteResponse, resp)
	return nil
}

func (c *Coordinator) handleWriteRelease(ctx context.Context, subject string, data []byte) error {
	var rel messagequeue.WriteReleasePayload
	if err := json.Unmarshal(data, &rel); err != nil {
		return fmt.Errorf("unmarshal write release: %w", err)
	}
	c.scopes.ReleaseWriteAccess(ctx, rel.AgentID, rel.Path)
	return nil
}

func (c *Coordinator) handleFileModified(ctx context.Context, subject string, data []byte) error {
	var mod messagequeue.FileModifiedPayload
	if err := json.Unmarshal(data, &mod); err != nil {
		return fmt.Errorf("unmarshal file modified: %w", err)
	}
	if err := c.scopes.RecordModification(mod.AgentID, mod.Path); err != nil {
		slog.Warn("record modification", "agent_id", mod.AgentID, "path", mod.Path, "error", err)
	}
	return nil
}

func (c *Coordinator) handleAgentComplete(ctx context.Context, subject string, data []byte) error {
	var done messagequeue.AgentCompletePayload
	if err := json.Unmarshal(data, &done); err != nil {
		return fmt.Errorf("unmarshal agent complete: %w", err)
	}
	if err := c.CompleteAgent(ctx, done.AgentID, &done.Result); err != nil {
		slog.Warn("complete agent", "agent_id", done.AgentID, "error", err)
	}
	return nil
}
