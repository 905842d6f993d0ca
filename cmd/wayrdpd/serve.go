package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/clipboard"
	wconfig "github.com/lamco-admin/wayland-rdp-sub001/internal/config"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/portal"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/strategy"
)

const closeTimeout = 5 * time.Second

var errNoClipboardBridge = errors.New("wayrdpd: no clipboard bridge for this session kind")

func newServeCmd() *cobra.Command {
	var width, height int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Detect capabilities, establish a session, and run until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), width, height)
		},
	}
	cmd.Flags().IntVar(&width, "width", 1920, "virtual output width advertised to the compositor")
	cmd.Flags().IntVar(&height, "height", 1080, "virtual output height advertised to the compositor")
	return cmd
}

func runServe(parent context.Context, width, height int) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dep, err := newDeployment(ctx)
	if err != nil {
		return err
	}
	if dep.client != nil {
		defer dep.client.Close()
	}

	sess, err := dep.establishSession(ctx, width, height)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("wayrdpd: session close failed")
		}
	}()

	log.Info().Str("strategy", sess.Kind().String()).Msg("wayrdpd: session established")

	mgr, err := buildClipboardManager(sess, dep.client, dep.cfg.Clipboard)
	if err != nil {
		log.Warn().Err(err).Msg("wayrdpd: clipboard disabled, could not build bridge for this session kind")
	}
	if mgr != nil {
		defer func() {
			if err := mgr.Close(); err != nil {
				log.Warn().Err(err).Msg("wayrdpd: clipboard manager close failed")
			}
		}()
		go func() {
			if err := mgr.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("wayrdpd: clipboard manager stopped unexpectedly")
			}
		}()
	}

	// Video capture wiring (internal/capture -> internal/pipeline ->
	// rdpio.FrameSink) needs the PipeWire node id the ScreenCast stream
	// was assigned, obtained from the compositor after RecordVirtual/
	// Start rather than synthesized here; internal/pipeline is exercised
	// directly by its own tests, internal/capture has none. A
	// real RDP collaborator implementing rdpio.FrameSink/ClipboardSink/
	// ClipboardSource is the pluggable external boundary spec.md's
	// Non-goals carve out — noopRDPSink/noopRDPSource below stand in for
	// it so the clipboard manager has somewhere to deliver data.
	log.Info().Msg("wayrdpd: running (Ctrl-C to stop)")
	<-ctx.Done()
	log.Info().Msg("wayrdpd: shutting down")
	return nil
}

// buildClipboardManager picks the GNOME-direct or portal clipboard
// adapter based on the established session's Kind, using the optional
// strategy.ClipboardDBus seam so this package never reaches into
// strategy's unexported session types.
func buildClipboardManager(sess strategy.Session, client *portal.Client, cfg wconfig.Clipboard) (*clipboard.Manager, error) {
	dbusSess, ok := sess.(strategy.ClipboardDBus)
	if !ok {
		return nil, errNoClipboardBridge
	}
	conn, path := dbusSess.ClipboardSession()

	mgrCfg := clipboard.DefaultConfig()
	mgrCfg.ReadTimeout = time.Duration(cfg.ReadLockTimeoutS) * time.Second
	mgrCfg.Transfer.Timeout = time.Duration(cfg.TransferTimeoutS) * time.Second
	mgrCfg.Transfer.MaxDataSize = cfg.MaxFileChunkBytes
	mgrCfg.PasteDedupWindow = time.Duration(cfg.PasteDedupWindowMS) * time.Millisecond
	mgrCfg.EchoWindow = time.Duration(cfg.EchoWindowMS) * time.Millisecond
	mgrCfg.LoopDetectWindow = time.Duration(cfg.LoopDetectWindowMS) * time.Millisecond
	mgrCfg.DownloadDir = cfg.DownloadDir
	mgrCfg.FuseDir = cfg.FuseDir

	switch sess.Kind() {
	case strategy.KindDirectMutter:
		bridge := clipboard.NewGNOMEAdapter(clipboard.NewGNOMEBridge(conn, path))
		return clipboard.NewManager(mgrCfg, bridge, noopRDPSink{}, noopRDPSource{}), nil
	case strategy.KindPortalToken, strategy.KindPortalBasic:
		if client == nil {
			return nil, errNoClipboardBridge
		}
		bridge := clipboard.NewPortalAdapter(clipboard.NewPortalBridge(client, path))
		return clipboard.NewManager(mgrCfg, bridge, noopRDPSink{}, noopRDPSource{}), nil
	default:
		return nil, errNoClipboardBridge
	}
}
