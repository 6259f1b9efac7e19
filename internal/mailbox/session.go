package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"time"

	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
)

// Credentials holds the mailbox login data for one account.
type Credentials struct {
	// Address is the email address used as the login name.
	Address string

	// AppPassword is the application-specific password. Regular account
	// passwords do not work over IMAP.
	AppPassword string

	// Region is the preferred server region code; empty selects the
	// default region.
	Region string
}

// region pairs a region code with its IMAP hostname.
type region struct {
	code string
	host string
}

// regions is the fixed fallback order of Zoho IMAP endpoints. "pro"
// (Workplace accounts with custom domains) comes first because it is the
// most common setup.
var regions = []region{
	{"pro", "imappro.zoho.com"},
	{"eu", "imap.zoho.eu"},
	{"com", "imap.zoho.com"},
	{"in", "imap.zoho.in"},
	{"au", "imap.zoho.com.au"},
}

const (
	imapPort = "993"

	// DefaultFolder is the mailbox folder searched when none is given.
	DefaultFolder = "INBOX"

	dialTimeout = 30 * time.Second
)

// AuthError indicates that every region endpoint rejected the
// credentials. It carries the last underlying login error.
type AuthError struct {
	Address string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s on all regions: %v", e.Address, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Session is a single authenticated IMAP connection. It is stateful (the
// selected folder is connection state) and not safe for concurrent use;
// the owner must serialize all calls and Close the session when done.
type Session struct {
	client *imapclient.Client
	host   string
	logger *slog.Logger
}

// regionOrder returns the fallback sequence with the preferred region
// first and the rest in their fixed enumeration order.
func regionOrder(preferred string) []region {
	ordered := make([]region, 0, len(regions))
	for _, r := range regions {
		if r.code == preferred {
			ordered = append([]region{r}, ordered...)
		} else {
			ordered = append(ordered, r)
		}
	}
	return ordered
}

// Connect dials the region endpoints in fallback order and logs in,
// returning a session bound to the first endpoint that accepts the
// credentials. A rejected login closes that transport and moves on; when
// every region fails the returned error is an *AuthError wrapping the
// last cause.
func Connect(ctx context.Context, creds Credentials, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := &imapclient.Options{
		// Encoded-word headers with broken or unknown charsets decode
		// with replacement instead of failing the fetch.
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}
	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: dialTimeout}}

	var lastErr error
	for _, r := range regionOrder(creds.Region) {
		addr := net.JoinHostPort(r.host, imapPort)
		logger.Info("trying IMAP server", "region", r.code, "addr", addr)

		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = fmt.Errorf("connecting to %s: %w", addr, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		client := imapclient.New(conn, opts)
		if err := client.Login(creds.Address, creds.AppPassword).Wait(); err != nil {
			logger.Warn("IMAP login failed", "addr", addr, "error", err)
			lastErr = err
			discardClient(client)
			continue
		}

		logger.Info("connected to IMAP server", "addr", addr)
		return &Session{client: client, host: r.host, logger: logger}, nil
	}

	return nil, &AuthError{Address: creds.Address, Err: lastErr}
}

// Host returns the hostname of the endpoint this session is bound to.
func (s *Session) Host() string { return s.host }

// Close logs out and releases the transport. Logout failures are
// swallowed; the session is unusable afterwards either way.
func (s *Session) Close() {
	if s == nil || s.client == nil {
		return
	}
	discardClient(s.client)
	s.client = nil
}

// discardClient logs out best-effort and then closes the transport. The
// explicit close matters when the server drops the link without
// answering the LOGOUT: the failed command alone would leak the conn.
func discardClient(client *imapclient.Client) {
	_ = client.Logout().Wait()
	_ = client.Close()
}

// selectFolder makes folder the current mailbox selection. IMAP search
// and fetch operate on the selected folder, so every operation selects
// first.
func (s *Session) selectFolder(folder string) error {
	if folder == "" {
		folder = DefaultFolder
	}
	if _, err := s.client.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", folder, err)
	}
	return nil
}
