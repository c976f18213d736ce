package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banyanstay/notify-dispatch/internal/model"
	"github.com/banyanstay/notify-dispatch/internal/provider"
)

// bulkConcurrency bounds the provider fan-out of one bulk request. A slow
// recipient must not block the rest, but an unbounded burst would blow
// through provider connection limits.
const bulkConcurrency = 8

type BulkRecipient struct {
	Destination string
	Variables   map[string]string
	Metadata    map[string]string
}

type BulkRequest struct {
	TemplateID   string
	Body         string
	Recipients   []BulkRecipient
	Provider     string
	Priority     model.Priority
	ScheduledFor *time.Time
}

type BulkError struct {
	Destination string `json:"destination"`
	Error       string `json:"error"`
}

type BulkResult struct {
	Total         int         `json:"total"`
	Sent          int         `json:"sent"`
	Failed        int         `json:"failed"`
	MessageIDs    []string    `json:"message_ids"`
	Errors        []BulkError `json:"errors"`
	EstimatedCost float64     `json:"estimated_cost,omitempty"`
}

// SendBulk fans one template and per-recipient variable sets out to many
// destinations. Recipients are independent: an individual failure never
// aborts the batch, and results keep recipient correlation by index.
func (e *Engine) SendBulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	type slot struct {
		msg *model.Message
		res *SendResult
	}
	slots := make([]slot, len(req.Recipients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, r := range req.Recipients {
		g.Go(func() error {
			m, res, err := e.sendOne(gctx, SendRequest{
				Destinations: []string{r.Destination},
				TemplateID:   req.TemplateID,
				Body:         req.Body,
				Variables:    r.Variables,
				Provider:     req.Provider,
				Priority:     req.Priority,
				ScheduledFor: req.ScheduledFor,
				Metadata:     r.Metadata,
			})
			if err != nil {
				res = failure(CodeSendFailed, err.Error())
			}
			slots[i] = slot{msg: m, res: res}
			return nil
		})
	}
	_ = g.Wait()

	out := &BulkResult{Total: len(req.Recipients)}
	for i, s := range slots {
		if s.res != nil && s.res.MessageID != "" {
			out.MessageIDs = append(out.MessageIDs, s.res.MessageID)
		}
		if s.res != nil && s.res.Success {
			out.Sent++
			if s.msg != nil {
				adapter := e.registry.Resolve(s.msg.Provider)
				if ce, ok := adapter.(provider.CostEstimator); ok {
					out.EstimatedCost += ce.EstimateCost(s.msg.Segments)
				}
			}
			continue
		}
		out.Failed++
		msg := "send failed"
		if s.res != nil && s.res.Error != "" {
			msg = s.res.Error
		}
		out.Errors = append(out.Errors, BulkError{
			Destination: req.Recipients[i].Destination,
			Error:       msg,
		})
	}
	return out, nil
}
