package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/rdpio"
)

// noopRDPSink and noopRDPSource stand in for the real RDP collaborator
// at the rdpio.ClipboardSink/ClipboardSource seam (internal/rdpio's
// doc comment: RDP PDU encoding is out of scope per spec.md's
// Non-goals). They let the clipboard manager run end-to-end against a
// live D-Bus session for manual testing without a wired-up RDP stack.
type noopRDPSink struct{}

func (noopRDPSink) SendInitiateCopy(ctx context.Context, formats []uint32) error {
	log.Debug().Ints("formats", toInts(formats)).Msg("rdpio stub: would announce formats to RDP client")
	return nil
}

func (noopRDPSink) SendInitiatePaste(ctx context.Context, formatID uint32) error {
	log.Debug().Uint32("format_id", formatID).Msg("rdpio stub: would initiate paste from RDP client")
	return nil
}

func (noopRDPSink) SendFormatData(ctx context.Context, data []byte) error {
	log.Debug().Int("bytes", len(data)).Msg("rdpio stub: would deliver clipboard data to RDP client")
	return nil
}

func (noopRDPSink) SendFormatDataError(ctx context.Context) error {
	log.Debug().Msg("rdpio stub: would send format data error to RDP client")
	return nil
}

func (noopRDPSink) SendLockClipboard(ctx context.Context, clipDataID uint32) error {
	log.Debug().Uint32("clip_data_id", clipDataID).Msg("rdpio stub: would lock RDP clipboard")
	return nil
}

func (noopRDPSink) SendUnlockClipboard(ctx context.Context, clipDataID uint32) error {
	log.Debug().Uint32("clip_data_id", clipDataID).Msg("rdpio stub: would unlock RDP clipboard")
	return nil
}

func (noopRDPSink) SendFileContentsRequest(ctx context.Context, req rdpio.FileContentsRequest) error {
	log.Debug().Uint32("stream_id", req.StreamID).Msg("rdpio stub: would request file contents from RDP client")
	return nil
}

func (noopRDPSink) SendFileContentsResponse(ctx context.Context, resp rdpio.FileContentsResponse) error {
	log.Debug().Uint32("stream_id", resp.StreamID).Int("bytes", len(resp.Data)).Msg("rdpio stub: would deliver file contents to RDP client")
	return nil
}

type noopRDPSource struct{}

func (noopRDPSource) RequestFormatList(ctx context.Context) ([]uint32, error) {
	return nil, nil
}

func toInts(u []uint32) []int {
	out := make([]int, len(u))
	for i, v := range u {
		out[i] = int(v)
	}
	return out
}
