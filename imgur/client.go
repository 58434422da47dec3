package imgur

import (
	"context"

	"imgurfetch/internal"
)

// Client is the entry point for API calls. It resolves operations, runs them
// as tasks and interprets the response envelope.
type Client struct {
	cc       *ClientContext
	resolver *Resolver
}

// NewClient creates a client bound to cc
func NewClient(cc *ClientContext) *Client {
	return &Client{
		cc:       cc,
		resolver: NewResolver(&cc.config),
	}
}

// Context returns the client's shared state
func (c *Client) Context() *ClientContext {
	return c.cc
}

// Call resolves op and starts a task for it. If op cannot be resolved,
// onComplete is called synchronously with the error and no task is returned.
// Both callbacks are optional.
func (c *Client) Call(op Operation, onComplete func(Result), onProgress func(float64)) (*Task, error) {
	desc, err := c.resolver.Resolve(op, c.cc.Credentials())
	if err != nil {
		c.cc.logger.Debug("%s: %v", op.Name(), err)
		if onComplete != nil {
			onComplete(Result{Err: err})
		}
		return nil, err
	}

	task := NewTask(c.cc, *desc)
	task.OnComplete(onComplete)
	task.OnProgress(onProgress)
	task.Start()
	return task, nil
}

// DownloadImage fetches the full image behind record. It is not
// de-duplicated; use a Coordinator for thumbnails.
func (c *Client) DownloadImage(record internal.ResourceRecord, onComplete func(Result), onProgress func(float64)) (*Task, error) {
	kind := internal.TaskKind{Type: internal.TaskDownloadStandalone, ResourceID: record.ID}
	desc, err := c.resolver.ImageDescriptor(record, kind)
	if err != nil {
		if onComplete != nil {
			onComplete(Result{Err: err})
		}
		return nil, err
	}

	task := NewTask(c.cc, *desc)
	task.OnComplete(onComplete)
	task.OnProgress(onProgress)
	task.Start()
	return task, nil
}

// AuthorizationURL returns the page the user opens to grant access
func (c *Client) AuthorizationURL() (string, error) {
	desc, err := c.resolver.Resolve(Authorize{}, c.cc.Credentials())
	if err != nil {
		return "", err
	}
	return desc.URL.String(), nil
}

// ListImages returns one page of the signed-in account's images
func (c *Client) ListImages(ctx context.Context, page int) ([]internal.ResourceRecord, error) {
	result, err := c.await(ctx, ListImages{Page: page}, nil)
	if err != nil {
		return nil, err
	}

	var records []internal.ResourceRecord
	if err := DecodeData(result.Payload, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ImageCount returns how many images the signed-in account has
func (c *Client) ImageCount(ctx context.Context) (int, error) {
	result, err := c.await(ctx, ImageCount{}, nil)
	if err != nil {
		return 0, err
	}

	var count int
	if err := DecodeData(result.Payload, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Upload posts payload and returns the new image's identifiers
func (c *Client) Upload(ctx context.Context, payload internal.UploadPayload, onProgress func(float64)) (*internal.UploadResult, error) {
	result, err := c.await(ctx, Upload{Payload: payload}, onProgress)
	if err != nil {
		return nil, err
	}

	var uploaded internal.UploadResult
	if err := DecodeData(result.Payload, &uploaded); err != nil {
		return nil, err
	}
	return &uploaded, nil
}

// Delete removes an image from the signed-in account
func (c *Client) Delete(ctx context.Context, resourceID string) error {
	_, err := c.await(ctx, Delete{ResourceID: resourceID}, nil)
	return err
}

// await runs op and blocks until it finishes. The task is cancelled if ctx
// ends first.
func (c *Client) await(ctx context.Context, op Operation, onProgress func(float64)) (Result, error) {
	task, err := c.Call(op, nil, onProgress)
	if err != nil {
		return Result{}, err
	}

	result, err := task.Wait(ctx)
	if err != nil {
		task.Cancel()
		return Result{}, err
	}
	if result.Err != nil {
		return result, result.Err
	}
	return result, nil
}
