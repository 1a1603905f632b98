/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package runnable

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/manager"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPServer converts the given HTTP server into a runnable listening on srv.Addr.
// Open connections get up to ten seconds to drain once ctx is done.
func HTTPServer(name string, srv *http.Server, logger logr.Logger) manager.Runnable {
	return manager.RunnableFunc(func(ctx context.Context) error {
		log := logger.WithValues("name", name)
		log.Info("HTTP server starting")

		lis, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return fmt.Errorf("HTTP server failed to listen - %w", err)
		}
		log.Info("HTTP server listening", "addr", lis.Addr().String())

		doneCh := make(chan struct{})
		defer close(doneCh)
		go func() {
			select {
			case <-ctx.Done():
				log.Info("HTTP server shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Error(err, "HTTP server shutdown did not complete")
					_ = srv.Close()
				}
			case <-doneCh:
			}
		}()

		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed - %w", err)
		}
		log.Info("HTTP server terminated")
		return nil
	})
}

// Func adapts a blocking function to a runnable.
func Func(fn func(ctx context.Context) error) manager.Runnable {
	return manager.RunnableFunc(fn)
}
