// Package web serves the local wallet status API: session snapshots, a live SSE stream
// and the connect, switch and claim actions.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

const defaultHeartbeat = 30 * time.Second

// Session is the wallet session manager as seen by the status server.
type Session interface {
	State() domain.WalletSession
	Subscribe() chan domain.WalletSession
	Unsubscribe(ch chan domain.WalletSession)
	Connect(ctx context.Context) error
	Disconnect()
	SwitchToMainnet(ctx context.Context) error
	SwitchNetwork(ctx context.Context, network domain.NetworkDescriptor) error
}

// Claimer runs karma conversions.
type Claimer interface {
	Claim(ctx context.Context, req domain.ConversionRequest) (domain.ConversionReceipt, error)
	InFlight() bool
	Network() domain.NetworkDescriptor
}

// Server exposes the wallet session over HTTP.
type Server struct {
	addr      string
	session   Session
	claimer   Claimer
	heartbeat time.Duration
	l         *zap.Logger
}

// NewServer creates a status server. claimer may be nil, which disables /karma/claim.
func NewServer(addr string, session Session, claimer Claimer, l *zap.Logger) *Server {
	return &Server{
		addr:      addr,
		session:   session,
		claimer:   claimer,
		heartbeat: defaultHeartbeat,
		l:         l.With(zap.String("component", "web")),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /wallet", s.handleState)
	mux.HandleFunc("GET /wallet/stream", s.handleStream)
	mux.HandleFunc("POST /wallet/connect", s.handleConnect)
	mux.HandleFunc("POST /wallet/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /wallet/switch", s.handleSwitch)
	mux.HandleFunc("POST /karma/claim", s.handleClaim)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("wallet status server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SessionView is the wire shape of a session snapshot.
type SessionView struct {
	domain.WalletSession
	Status       string `json:"status"`
	ShortAddress string `json:"shortAddress,omitempty"`
	NetworkName  string `json:"networkName,omitempty"`
	ExplorerURL  string `json:"explorerUrl,omitempty"`
}

func viewOf(s domain.WalletSession) SessionView {
	v := SessionView{WalletSession: s, Status: s.Status().String()}
	if s.Address != nil {
		v.ShortAddress = s.Address.Short(4)
	}
	if s.ChainID != nil {
		v.NetworkName = domain.NetworkName(*s.ChainID)
		if s.Address != nil {
			v.ExplorerURL = domain.AddressExplorerURL(*s.Address, *s.ChainID)
		}
	}
	return v
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(s.session.State()))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.session.Subscribe()
	defer s.session.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(state domain.WalletSession) error {
		payload, err := json.Marshal(viewOf(state))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "event: session\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return nil
	}

	if err := send(s.session.State()); err != nil {
		s.l.Error("session stream initial write", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case state, ok := <-ch:
			if !ok {
				return
			}
			if err := send(state); err != nil {
				s.l.Warn("session stream write", zap.Error(err))
			}
		}
	}
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Connect(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s.session.State()))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.session.Disconnect()
	writeJSON(w, http.StatusOK, viewOf(s.session.State()))
}

type switchRequest struct {
	// Network is "mainnet" or "conversion"; empty means the conversion network.
	Network string `json:"network"`
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errors.Wrap(domain.ErrInvalidRequest, "malformed body"))
			return
		}
	}

	var err error
	switch req.Network {
	case "mainnet":
		err = s.session.SwitchToMainnet(r.Context())
	case "", "conversion":
		network := domain.ArbitrumSepolia
		if s.claimer != nil {
			network = s.claimer.Network()
		}
		err = s.session.SwitchNetwork(r.Context(), network)
	default:
		err = errors.Wrapf(domain.ErrInvalidRequest, "unknown network %q", req.Network)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s.session.State()))
}

type claimRequest struct {
	Points uint64 `json:"points"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if s.claimer == nil {
		s.writeError(w, domain.ErrTreasuryNotConfigured)
		return
	}
	if s.claimer.InFlight() {
		s.writeError(w, domain.ErrClaimInProgress)
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(domain.ErrInvalidRequest, "malformed body"))
		return
	}

	state := s.session.State()
	if !state.IsConnected || state.Address == nil {
		s.writeError(w, domain.ErrNotConnected)
		return
	}

	receipt, err := s.claimer.Claim(r.Context(), domain.ConversionRequest{Points: req.Points, Destination: *state.Address})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.l.Error("wallet request failed", zap.Error(err))
	} else {
		s.l.Debug("wallet request rejected", zap.Error(err))
	}
	writeJSON(w, code, domain.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInsufficientTreasuryFunds):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotConnected),
		errors.Is(err, domain.ErrNoAccounts):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrClaimInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNetworkSwitchFailed),
		errors.Is(err, domain.ErrTransferFailed),
		errors.Is(err, domain.ErrConfirmationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
