package worker

import (
	"context"
	"sync"

	"github.com/spec-kit/intake-desk/internal/service"
)

// StartNotificationWorker registers notification handlers and drains queued
// requester messages until ctx is done. The returned func waits for the workers.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, workers int) func() {
	if notificationService == nil {
		return func() {}
	}
	notificationService.RegisterHandlers()

	jobs := notificationService.Jobs()
	if jobs == nil {
		return func() {}
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-jobs:
					notificationService.Deliver(context.WithoutCancel(ctx), job)
				}
			}
		}()
	}
	return wg.Wait
}
