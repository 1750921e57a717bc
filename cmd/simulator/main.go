// Command simulator runs a device client against an in-memory loopback
// transport with a scripted hub side. It exercises the full engine surface:
// event sends, twin patches, reported state, method invocations, and a
// block-by-block blob upload.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hublink/hublink/internal/core/blob"
	"github.com/hublink/hublink/internal/core/client"
	"github.com/hublink/hublink/internal/core/config"
	"github.com/hublink/hublink/internal/core/connection"
	"github.com/hublink/hublink/internal/core/observability/log"
	"github.com/hublink/hublink/internal/core/outbox"
	"github.com/hublink/hublink/internal/core/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "simulator:", err)
		os.Exit(1)
	}
}

func run() error {
	logger := log.New(log.LevelInfo)
	store := blob.NewMemStore()
	loop := transport.NewLoopback()
	loop.AutoAck = true

	cfg := client.DefaultConfig()
	cfg.Device = config.Device{
		HostName:        "hub.local",
		DeviceID:        "sim-device-1",
		SharedAccessKey: "c2ltdWxhdG9yLWtleQ==",
	}
	cfg.BlobStore = store

	c, err := client.New(cfg, loop)
	if err != nil {
		return err
	}

	_ = c.SetConnectionStatusCallback(func(status connection.Status, reason transport.Reason, _ any) {
		logger.Info("connection status changed",
			log.String("status", status.String()),
			log.String("reason", reason.String()))
	}, nil)

	_ = c.SetDeviceTwinCallback(func(payload []byte, desired, reported int64, _ any) {
		logger.Info("twin patch applied",
			log.Int64("desired_version", desired),
			log.Int64("reported_version", reported),
			log.String("payload", string(payload)))
	}, nil)

	_ = c.SetDeviceMethodCallback(func(name string, payload []byte, _ any) (int, []byte) {
		logger.Info("method invoked", log.String("name", name))
		return 200, []byte(`{"ok":true}`)
	}, nil)

	for i := 0; i < 3; i++ {
		msg := transport.NewMessage([]byte(fmt.Sprintf(`{"seq":%d}`, i)))
		seq := i
		err = c.SendEventAsync(msg, func(result outbox.Result, _ any) {
			logger.Info("event confirmed",
				log.Int("seq", seq),
				log.String("result", result.String()))
		}, nil)
		if err != nil {
			return err
		}
	}

	uploadDone := false
	err = c.UploadToBlobAsync("telemetry.bin", []byte("simulated blob contents"), func(result blob.Result, bytes int64) {
		uploadDone = true
		logger.Info("upload finished",
			log.String("result", result.String()),
			log.Int64("bytes", bytes))
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)

	// The client handle is single-threaded by contract, so the hub script
	// never touches the loopback directly: it hands events to the device
	// loop through a channel.
	connected := make(chan struct{})
	script := make(chan transport.Event, 8)

	// Hub side: push twin patches and a method request once connected.
	group.Go(func() error {
		defer close(script)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-connected:
		}
		script <- transport.TwinPatchEvent{Version: 1, Payload: []byte(`{"interval":60}`)}
		script <- transport.MethodRequestEvent{Token: "inv-1", Name: "reboot"}
		script <- transport.MessageEvent{Message: transport.NewMessage([]byte("hello device"))}
		return nil
	})

	// Device side: tick the scheduler until the work drains.
	group.Go(func() error {
		signaled := false
		for {
			for {
				ev, ok := tryRecv(script)
				if !ok {
					break
				}
				loop.PushEvent(ev)
			}
			c.DoWork()
			if !signaled && loop.Connected() {
				signaled = true
				close(connected)
			}
			status, serr := c.SendStatus()
			if serr != nil {
				return serr
			}
			if status == client.SendStatusIdle && uploadDone && len(loop.Responses) > 0 {
				c.Destroy()
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info("simulation complete",
		log.Int("events_sent", len(loop.SentMessages)),
		log.Int("method_responses", len(loop.Responses)),
		log.Bool("blob_committed", store.Committed["telemetry.bin"]))
	return nil
}

func tryRecv(ch <-chan transport.Event) (transport.Event, bool) {
	select {
	case ev, ok := <-ch:
		return ev, ok
	default:
		return nil, false
	}
}

