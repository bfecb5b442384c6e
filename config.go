package soulseek

import (
	"time"

	"go.uber.org/zap"
)

// ConnectionOptions bundles the per-kind tunables spec §6 lists for each of
// the five connection kinds, grounded on the teacher's per-concern option
// struct composition (pkg/config/p2p.go's P2P struct).
type ConnectionOptions struct {
	ConnectTimeout    time.Duration
	InactivityTimeout time.Duration
	ReadBufferSize    int
	WriteBufferSize   int
}

// DefaultConnectionOptions returns the engine's baseline timeouts/buffers.
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		ConnectTimeout:    10 * time.Second,
		InactivityTimeout: 15 * time.Second,
		ReadBufferSize:    16 * 1024,
		WriteBufferSize:   16 * 1024,
	}
}

// Resolvers are the embedder-supplied callbacks the engine invokes for
// server-initiated queries (spec §6 "Collaborator contracts"). Each may be
// left nil, in which case the corresponding request is declined.
type Resolvers struct {
	SearchResponse      func(query string, token uint32, requester string) (*SearchResult, error)
	BrowseResponse      func(requester string) (*BrowseResult, error)
	DirectoryContents   func(requester, directory string) (*DirectoryResult, error)
	UserInfo            func(requester string) (*UserInfoResult, error)
	PlaceInQueue        func(requester, filename string) (int, error)
	EnqueueDownload     func(requester, filename string) error
}

// EndpointCache is the collaborator contract for resolving and caching
// peer endpoints (spec §6). The default implementation lives in
// internal/endpoint; embedders may substitute their own (e.g. backed by a
// persistent address book).
type EndpointCache interface {
	TryGet(username string) (Endpoint, bool)
	AddOrUpdate(username string, ep Endpoint)
}

// Governor throttles transfer I/O at chunk boundaries (spec §6, glossary
// "Governor"). ctx is done if the owning operation is cancelled mid-delay.
type Governor func(ctx interface{ Done() <-chan struct{} }, bytesInChunk int) error

// Config configures a Client. New fills zero-valued connection options,
// child limit, promotion delay, upload limits, MessageTimeout and Logger
// from DefaultConfig; other fields, booleans included, are used as given.
// Loading Config from a file is an external collaborator
// concern and is intentionally not implemented here (spec §1 "configuration
// file loading" is out of scope).
type Config struct {
	Username string
	Password string

	ServerAddress string

	ListenPort     int
	EnableListener bool

	EnableDistributedNetwork    bool
	AcceptDistributedChildren   bool
	DistributedChildLimit       int
	BranchRootPromotionDelay    time.Duration

	AcceptPrivateRoomInvitations bool
	DeduplicateSearchRequests    bool
	AutoAcknowledgePrivateMessages       bool
	AutoAcknowledgePrivilegeNotifications bool

	ServerConnectionOptions       ConnectionOptions
	PeerConnectionOptions         ConnectionOptions
	TransferConnectionOptions     ConnectionOptions
	IncomingConnectionOptions     ConnectionOptions
	DistributedConnectionOptions  ConnectionOptions

	MaximumConcurrentUploads         int
	MaximumConcurrentUploadsPerUser  int

	MessageTimeout time.Duration
	StartingToken  uint32

	MinimumDiagnosticLevel DiagnosticLevel

	Resolvers     Resolvers
	EndpointCache EndpointCache
	Governor      Governor

	Logger *zap.Logger
}

// DiagnosticLevel filters DiagnosticGenerated emission (spec §6
// Configuration, "minimum_diagnostic_level").
type DiagnosticLevel int

// Diagnostic levels, in increasing severity: Debug is the lowest value and
// Error the highest.
const (
	DiagnosticDebug DiagnosticLevel = iota
	DiagnosticInfo
	DiagnosticWarning
	DiagnosticError
)

// DefaultConfig returns a Config with every zero-value field replaced by the
// engine's default.
func DefaultConfig() Config {
	return Config{
		EnableListener:                   true,
		EnableDistributedNetwork:         true,
		AcceptDistributedChildren:        true,
		DistributedChildLimit:            50,
		BranchRootPromotionDelay:         5 * time.Second,
		DeduplicateSearchRequests:        true,
		ServerConnectionOptions:          DefaultConnectionOptions(),
		PeerConnectionOptions:            DefaultConnectionOptions(),
		TransferConnectionOptions:        DefaultConnectionOptions(),
		IncomingConnectionOptions:        DefaultConnectionOptions(),
		DistributedConnectionOptions:     DefaultConnectionOptions(),
		MaximumConcurrentUploads:         10,
		MaximumConcurrentUploadsPerUser:  1,
		MessageTimeout:                   5 * time.Second,
		MinimumDiagnosticLevel:           DiagnosticInfo,
		Logger:                           zap.NewNop(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ServerConnectionOptions == (ConnectionOptions{}) {
		c.ServerConnectionOptions = d.ServerConnectionOptions
	}
	if c.PeerConnectionOptions == (ConnectionOptions{}) {
		c.PeerConnectionOptions = d.PeerConnectionOptions
	}
	if c.TransferConnectionOptions == (ConnectionOptions{}) {
		c.TransferConnectionOptions = d.TransferConnectionOptions
	}
	if c.IncomingConnectionOptions == (ConnectionOptions{}) {
		c.IncomingConnectionOptions = d.IncomingConnectionOptions
	}
	if c.DistributedConnectionOptions == (ConnectionOptions{}) {
		c.DistributedConnectionOptions = d.DistributedConnectionOptions
	}
	if c.DistributedChildLimit == 0 {
		c.DistributedChildLimit = d.DistributedChildLimit
	}
	if c.BranchRootPromotionDelay == 0 {
		c.BranchRootPromotionDelay = d.BranchRootPromotionDelay
	}
	if c.MaximumConcurrentUploads == 0 {
		c.MaximumConcurrentUploads = d.MaximumConcurrentUploads
	}
	if c.MaximumConcurrentUploadsPerUser == 0 {
		c.MaximumConcurrentUploadsPerUser = d.MaximumConcurrentUploadsPerUser
	}
	if c.MessageTimeout == 0 {
		c.MessageTimeout = d.MessageTimeout
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}
