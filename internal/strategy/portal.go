package strategy

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/portal"
)

// Source/cursor-mode bit flags, matching the teacher's
// portalSource*/portalCursor* constants (XDG Desktop Portal ScreenCast
// interface, bitmask-typed 'types' and 'cursor_mode' options).
const (
	sourceMonitor = uint32(1)
	sourceWindow  = uint32(2)
	sourceVirtual = uint32(4)

	cursorHidden   = uint32(1)
	cursorEmbedded = uint32(2)
	cursorMetadata = uint32(4)
)

// portalSession is the Session implementation shared by PortalToken and
// PortalBasic — they differ only in whether a restore token is
// requested/persisted, not in the session-establishment call sequence.
type portalSession struct {
	kind         Kind
	client       *portal.Client
	sessionPath  dbus.ObjectPath
	restoreToken string
}

func (s *portalSession) Kind() Kind           { return s.kind }
func (s *portalSession) RestoreToken() string { return s.restoreToken }
func (s *portalSession) SessionPath() string  { return string(s.sessionPath) }

// ClipboardSession implements strategy.ClipboardDBus: the portal's
// Clipboard interface attaches to the same Session object ScreenCast
// established.
func (s *portalSession) ClipboardSession() (*dbus.Conn, dbus.ObjectPath) {
	return s.client.Conn(), s.sessionPath
}

func (s *portalSession) Close(ctx context.Context) error {
	obj := s.client.Object(s.sessionPath)
	return obj.Call(portal.IfaceSession+".Close", 0).Err
}

// establishPortalSession runs the CreateSession / SelectSources / Start
// sequence common to PortalToken and PortalBasic, generalized from the
// teacher's createPortalSession/selectPortalSources/startPortalSession
// trio. When restoreToken is non-empty it is passed to SelectSources so
// the compositor can skip the picker dialog; persistToken controls
// whether a new restore_token is requested back.
func establishPortalSession(ctx context.Context, client *portal.Client, restoreToken string, persistToken bool) (*portalSession, string, error) {
	createResults, err := client.Call(ctx, portal.IfaceScreenCast, "CreateSession", screenCastSessionOptions())
	if err != nil {
		return nil, "", fmt.Errorf("strategy: portal CreateSession: %w", err)
	}
	handle, ok := createResults["session_handle"].Value().(string)
	if !ok || handle == "" {
		return nil, "", fmt.Errorf("strategy: portal CreateSession: no session_handle in response")
	}
	sessionPath := dbus.ObjectPath(handle)

	selectOpts := map[string]dbus.Variant{
		"types":       dbus.MakeVariant(sourceMonitor | sourceVirtual),
		"cursor_mode": dbus.MakeVariant(cursorMetadata),
	}
	if persistToken {
		selectOpts["persist_mode"] = dbus.MakeVariant(uint32(2)) // persist until explicitly revoked
	} else {
		selectOpts["persist_mode"] = dbus.MakeVariant(uint32(0))
	}
	if restoreToken != "" {
		selectOpts["restore_token"] = dbus.MakeVariant(restoreToken)
	}
	if _, err := client.Call(ctx, portal.IfaceScreenCast, "SelectSources", sessionPath, selectOpts); err != nil {
		return nil, "", fmt.Errorf("strategy: portal SelectSources: %w", err)
	}

	startResults, err := client.Call(ctx, portal.IfaceScreenCast, "Start", sessionPath, "", emptyOptions())
	if err != nil {
		return nil, "", fmt.Errorf("strategy: portal Start: %w", err)
	}

	newToken, _ := startResults["restore_token"].Value().(string)

	return &portalSession{client: client, sessionPath: sessionPath, restoreToken: newToken}, newToken, nil
}

func screenCastSessionOptions() map[string]dbus.Variant {
	return map[string]dbus.Variant{}
}

func emptyOptions() map[string]dbus.Variant {
	return map[string]dbus.Variant{}
}

// PortalToken is priority 4: universal across compositors, one dialog on
// first run then unattended via the saved restore token, grounded on
// selector.rs's PortalTokenStrategy + the credential store's token
// lifecycle.
type PortalToken struct {
	deps Deps
}

func NewPortalToken(deps Deps) *PortalToken { return &PortalToken{deps: deps} }

func (p *PortalToken) Kind() Kind { return KindPortalToken }

func (p *PortalToken) Available(ctx context.Context) bool {
	return p.deps.Client != nil
}

func (p *PortalToken) Establish(ctx context.Context) (Session, error) {
	const tokenKey = "screencast-restore-token"

	var existing string
	if p.deps.Tokens != nil {
		if blob, err := p.deps.Tokens.Load(ctx, tokenKey); err == nil {
			existing = string(blob)
		}
	}

	sess, newToken, err := establishPortalSession(ctx, p.deps.Client, existing, true)
	if err != nil {
		return nil, err
	}
	sess.kind = KindPortalToken

	if newToken != "" && p.deps.Tokens != nil {
		if err := p.deps.Tokens.Save(ctx, tokenKey, []byte(newToken)); err != nil {
			log.Warn().Err(err).Msg("strategy: failed to persist restore token")
		}
	}
	return sess, nil
}

// PortalBasic is priority 5, the universal fallback for portal versions
// below 4 (no restore_token support): a permission dialog on every
// server start, per selector.rs's final-fallback comment.
type PortalBasic struct {
	deps Deps
}

func NewPortalBasic(deps Deps) *PortalBasic { return &PortalBasic{deps: deps} }

func (p *PortalBasic) Kind() Kind { return KindPortalBasic }

func (p *PortalBasic) Available(ctx context.Context) bool {
	return p.deps.Client != nil
}

func (p *PortalBasic) Establish(ctx context.Context) (Session, error) {
	sess, _, err := establishPortalSession(ctx, p.deps.Client, "", false)
	if err != nil {
		return nil, err
	}
	sess.kind = KindPortalBasic
	return sess, nil
}
