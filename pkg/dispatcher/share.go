package dispatcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"example.com/sharecore/pkg/capture"
	"example.com/sharecore/pkg/command"
	"example.com/sharecore/pkg/ipc"
)

const (
	previewParticipantID = "local"
	previewTrackID       = "screen_share"
)

// Enumeration renders thumbnails and can take seconds, so it runs off the
// dispatch goroutine and reports back through the queue.
func (d *Dispatcher) handleGetAvailableContent() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.EnumerateTimeout)
		defer cancel()

		screens, err := d.capture.Enumerate(ctx)
		if err != nil {
			d.fail(command.CodeEnumerationFailed, err)
		}
		d.Submit(command.AvailableContent{Screens: screens})
	}()
}

func (d *Dispatcher) handleAvailableContent(c command.AvailableContent) {
	for _, s := range c.Screens {
		d.sources[s.ID] = s
	}
	d.send(ipc.NewAvailableContent(c.Screens))
}

func (d *Dispatcher) handleStartScreenShare(c command.StartScreenShare) {
	slog.Info("dispatcher: starting screen share", "source", c.SourceID, "type", c.SourceType)

	if d.track != nil {
		d.unpublish()
	}

	if d.conn != nil {
		track, err := d.conn.PublishVideo(c.Config.Width, c.Config.Height)
		if err != nil {
			d.fail(command.CodePublishFailed, fmt.Errorf("publish screen share: %w", err))
			if d.sharing {
				d.capture.Stop()
				d.sharing = false
				d.Submit(command.ScreenShareStateChanged{Sharing: false, SourceID: d.share.SourceID})
			}
			return
		}
		d.track = track
	}

	var sink capture.FrameSink
	if d.track != nil {
		sink = d.track
	}
	sessionID, err := d.capture.Start(c.SourceID, c.SourceType, c.Config, sink)
	if err != nil {
		code := command.CodeCaptureFailed
		if errors.Is(err, capture.ErrSourceNotFound) {
			code = command.CodeSourceNotFound
		}
		d.fail(code, fmt.Errorf("start capture: %w", err))
		d.unpublish()
		if d.sharing {
			d.sharing = false
			d.Submit(command.ScreenShareStateChanged{Sharing: false, SourceID: d.share.SourceID})
		}
		return
	}

	d.share = c
	d.sessionID = sessionID
	d.sharing = true
	d.Submit(command.ScreenShareStateChanged{Sharing: true, SourceID: c.SourceID})
}

func (d *Dispatcher) handleStopScreenShare() {
	if !d.sharing && d.track == nil {
		slog.Debug("dispatcher: stop requested while not sharing")
		return
	}
	slog.Info("dispatcher: stopping screen share", "source", d.share.SourceID)
	d.capture.Stop()
	d.unpublish()
	d.sharing = false
	d.sessionID = ""
	d.Submit(command.ScreenShareStateChanged{Sharing: false, SourceID: d.share.SourceID})
}

func (d *Dispatcher) handleScreenShareStateChanged(c command.ScreenShareStateChanged) {
	d.sharing = c.Sharing
	if c.Sharing {
		d.send(ipc.NewScreenShareStarted(d.localID()))
		d.showOverlay(d.sourceBounds(c.SourceID))
		return
	}
	d.send(ipc.NewScreenShareStopped())
	d.hideOverlay()
}

// handleCaptureEnded handles a session that ended without a stop request
func (d *Dispatcher) handleCaptureEnded(c command.CaptureEnded) {
	if !d.sharing || c.SessionID != d.sessionID {
		slog.Debug("dispatcher: ignoring stale capture end", "session", c.SessionID, "source", c.SourceID)
		return
	}
	if c.Err != nil {
		slog.Error("dispatcher: capture failed", "source", c.SourceID, "error", c.Err)
		d.fail(command.CodeRestartFailed, c.Err)
	} else {
		slog.Info("dispatcher: capture ended by the system", "source", c.SourceID)
	}
	d.capture.Stop()
	d.unpublish()
	d.sharing = false
	d.Submit(command.ScreenShareStateChanged{Sharing: false, SourceID: c.SourceID})
}

func (d *Dispatcher) handlePreviewFrame(c command.PreviewFrame) {
	if !d.sharing {
		return
	}
	d.send(ipc.NewVideoFrame(
		previewParticipantID,
		previewTrackID,
		c.Width,
		c.Height,
		c.Timestamp,
		ipc.FormatJPEG,
		base64.StdEncoding.EncodeToString(c.JPEG),
	))
}

func (d *Dispatcher) unpublish() {
	if d.track == nil {
		return
	}
	track := d.track
	d.track = nil
	if d.conn == nil {
		return
	}
	if err := d.conn.Unpublish(track); err != nil {
		slog.Warn("dispatcher: unpublish failed", "track", track.ID(), "error", err)
	}
}

func (d *Dispatcher) sourceBounds(sourceID string) image.Rectangle {
	s, ok := d.sources[sourceID]
	if !ok {
		return image.Rectangle{}
	}
	return image.Rect(s.X, s.Y, s.X+s.Width, s.Y+s.Height)
}

func (d *Dispatcher) showOverlay(bounds image.Rectangle) {
	d.overlay.Show(bounds)
	d.overlayOn = true
	d.redraw()
}

func (d *Dispatcher) hideOverlay() {
	if !d.overlayOn {
		return
	}
	d.overlay.Hide()
	d.overlayOn = false
}
