package gdrive

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/tonimelisma/gdrive-backup/internal/tokenfile"
)

// Scopes requested at login. Backup never writes to Drive.
var Scopes = []string{drive.DriveReadonlyScope}

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackPath is the HTTP path the loopback redirect hits.
const callbackPath = "/"

// shutdownTimeout bounds draining of the callback server.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// LoadOAuthConfig reads the installed-app client secrets downloaded from the
// Google Cloud console.
func LoadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoCredentials, credentialsPath)
	}

	if err != nil {
		return nil, fmt.Errorf("gdrive: reading credentials %s: %w", credentialsPath, err)
	}

	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("gdrive: parsing credentials %s: %w", credentialsPath, err)
	}

	return cfg, nil
}

// Login runs the installed-app authorization code + PKCE flow against a
// loopback redirect:
//  1. Binds 127.0.0.1 on a random port
//  2. Opens the browser at Google's consent page
//  3. Receives the authorization code on the callback
//  4. Exchanges it and saves the token at tokenPath
//
// If openURL fails the URL is printed to stderr for manual copy-paste.
func Login(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath string,
	openURL func(string) error,
	logger *slog.Logger,
) (oauth2.TokenSource, error) {
	logger.Info("starting browser auth flow", slog.String("token_path", tokenPath))

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, logger)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, logger)

	// Copy so the caller's config keeps its own redirect.
	flowCfg := *cfg
	flowCfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d%s", port, callbackPath)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("gdrive: generating state token: %w", err)
	}

	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})

	authURL := flowCfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL", slog.String("error", openErr.Error()))
		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}

	var code string

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}

		code = res.code
	case <-ctx.Done():
		return nil, fmt.Errorf("gdrive: browser auth canceled: %w", ctx.Err())
	}

	tok, err := flowCfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange failed: %w", ErrUnauthorized, err)
	}

	if err := tokenfile.Save(tokenPath, tok, nil); err != nil {
		return nil, fmt.Errorf("gdrive: saving token: %w", err)
	}

	logger.Info("login successful",
		slog.String("token_path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return newPersistingSource(ctx, &flowCfg, tok, tokenPath, nil, logger), nil
}

// TokenSourceFromPath loads the saved token and returns a source that
// refreshes silently and writes refreshed tokens back to tokenPath.
// Returns ErrNotLoggedIn when no token is stored.
func TokenSourceFromPath(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath string,
	logger *slog.Logger,
) (oauth2.TokenSource, error) {
	tok, meta, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	logger.Debug("loaded saved token",
		slog.String("token_path", tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())),
	)

	return newPersistingSource(ctx, cfg, tok, tokenPath, meta, logger), nil
}

// Logout removes the saved token. A missing token is not an error.
func Logout(tokenPath string, logger *slog.Logger) error {
	removed, err := tokenfile.Remove(tokenPath)
	if err != nil {
		return err
	}

	logger.Info("logout", slog.String("token_path", tokenPath), slog.Bool("removed", removed))

	return nil
}

// NewHTTPClient returns an HTTP client that authorizes requests with ts.
// timeout bounds connection setup only; transfers may run long.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource, connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout

	base := &http.Client{Transport: transport}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	return oauth2.NewClient(ctx, ts)
}

// persistingSource writes every newly minted token back to disk, so a
// refresh performed mid-run survives the process.
type persistingSource struct {
	src    oauth2.TokenSource
	path   string
	meta   map[string]string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func newPersistingSource(
	ctx context.Context,
	cfg *oauth2.Config,
	tok *oauth2.Token,
	path string,
	meta map[string]string,
	logger *slog.Logger,
) *persistingSource {
	return &persistingSource{
		src:    cfg.TokenSource(ctx, tok),
		path:   path,
		meta:   meta,
		logger: logger,
		last:   tok.AccessToken,
	}
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		p.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return nil, tokenError(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.last {
		return tok, nil
	}

	p.last = tok.AccessToken

	if err := tokenfile.Save(p.path, tok, p.meta); err != nil {
		p.logger.Warn("failed to persist refreshed token",
			slog.String("token_path", p.path),
			slog.String("error", err.Error()),
		)

		return tok, nil
	}

	p.logger.Debug("persisted refreshed token",
		slog.String("token_path", p.path),
		slog.Time("expiry", tok.Expiry),
	)

	return tok, nil
}

// startCallbackServer binds 127.0.0.1:0 and serves mux in the background.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("gdrive: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("gdrive: listener address is not TCP")
	}

	logger.Debug("callback server listening", slog.Int("port", tcpAddr.Port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("gdrive: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, tcpAddr.Port, nil
}

// handleOAuthCallback validates state, extracts the code and reports it.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	report := func(res callbackResult) {
		select {
		case resultCh <- res:
		default:
		}
	}

	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		report(callbackResult{err: fmt.Errorf("gdrive: OAuth2 state mismatch (possible CSRF)")})

		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		report(callbackResult{err: fmt.Errorf("%w: authorization failed: %s", ErrUnauthorized, errParam)})

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		report(callbackResult{err: fmt.Errorf("gdrive: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	report(callbackResult{code: code})
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// generateState returns a random hex string for the OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
