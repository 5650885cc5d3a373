// Package pairing implements spec §4.13's peer pairing: a multiplexer
// instance presents an Ed25519 public key and a pairing URL (as a terminal
// QR code) for a new remote peer to scan, and accepts a signed handshake
// back from that peer before internal/bridge or internal/attach will serve
// it.
//
// Grounded on the teacher's internal/device (Ed25519 keypair generation,
// SHA-256 fingerprint, OS-keyring-backed secret storage via
// github.com/zalando/go-keyring) and internal/qr (half-block terminal QR
// rendering via github.com/skip2/go-qrcode), merged into one package and
// rescoped from "CLI device identity for Rails OAuth" to "peer-to-peer
// Ed25519 exchange between two multiplexer-facing clients" — this is why
// internal/auth (the OAuth device-grant flow) is dropped rather than
// adapted: it authenticates a CLI against one SaaS product, not a peer
// against another peer, so none of its flow carries over.
package pairing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skip2/go-qrcode"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "openmux"
	keyringSuffix  = "signing"
)

// Identity is this instance's long-lived Ed25519 keypair.
type Identity struct {
	SigningKey   ed25519.PrivateKey
	VerifyingKey ed25519.PublicKey
	Fingerprint  string

	configPath string
	mu         sync.RWMutex
}

type storedIdentity struct {
	VerifyingKey string `json:"verifying_key"`
	Fingerprint  string `json:"fingerprint"`
}

func skipKeyring() bool {
	if v := os.Getenv("OPENMUX_SKIP_KEYRING"); v == "1" || strings.EqualFold(v, "true") {
		return true
	}
	_, has := os.LookupEnv("OPENMUX_CONFIG_DIR")
	return has
}

func configPath(configDir string) (string, error) {
	if configDir == "" {
		configDir = os.Getenv("OPENMUX_CONFIG_DIR")
	}
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("pairing: determine home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "openmux")
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("pairing: create config dir: %w", err)
	}
	return filepath.Join(configDir, "identity.json"), nil
}

// Fingerprint renders a public key as a colon-joined hex fingerprint: the
// first 8 bytes of SHA-256(publicKey).
func Fingerprint(pub ed25519.PublicKey) string {
	hash := sha256.Sum256(pub)
	parts := make([]string, 8)
	for i := 0; i < 8; i++ {
		parts[i] = fmt.Sprintf("%02x", hash[i])
	}
	return strings.Join(parts, ":")
}

// LoadOrCreate loads this instance's identity from configDir (or the
// default config directory), generating a fresh Ed25519 keypair on first
// use.
func LoadOrCreate(configDir string) (*Identity, error) {
	path, err := configPath(configDir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return loadIdentity(path)
	}
	return createIdentity(path)
}

func signingKeyFilePath(path string) string {
	return strings.TrimSuffix(path, ".json") + ".signing_key"
}

func storeSigningKey(path, fingerprint string, key ed25519.PrivateKey) error {
	secret := base64.StdEncoding.EncodeToString(key.Seed())
	if skipKeyring() {
		return os.WriteFile(signingKeyFilePath(path), []byte(secret), 0600)
	}
	entry := fingerprint + "-" + keyringSuffix
	if err := keyring.Set(keyringService, entry, secret); err != nil {
		return fmt.Errorf("pairing: store signing key: %w", err)
	}
	return nil
}

func loadSigningKey(path, fingerprint string) (ed25519.PrivateKey, error) {
	var secret string
	if skipKeyring() {
		data, err := os.ReadFile(signingKeyFilePath(path))
		if err != nil {
			return nil, fmt.Errorf("pairing: read signing key file: %w", err)
		}
		secret = strings.TrimSpace(string(data))
	} else {
		entry := fingerprint + "-" + keyringSuffix
		s, err := keyring.Get(keyringService, entry)
		if err != nil {
			return nil, fmt.Errorf("pairing: load signing key: %w", err)
		}
		secret = s
	}

	seed, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("pairing: decode signing key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("pairing: signing key length = %d, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func loadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pairing: read identity: %w", err)
	}
	var stored storedIdentity
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("pairing: parse identity: %w", err)
	}
	signingKey, err := loadSigningKey(path, stored.Fingerprint)
	if err != nil {
		return nil, err
	}
	return &Identity{
		SigningKey:   signingKey,
		VerifyingKey: signingKey.Public().(ed25519.PublicKey),
		Fingerprint:  stored.Fingerprint,
		configPath:   path,
	}, nil
}

func createIdentity(path string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("pairing: generate keypair: %w", err)
	}
	fingerprint := Fingerprint(pub)
	if err := storeSigningKey(path, fingerprint, priv); err != nil {
		return nil, err
	}

	stored := storedIdentity{
		VerifyingKey: base64.StdEncoding.EncodeToString(pub),
		Fingerprint:  fingerprint,
	}
	content, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("pairing: serialize identity: %w", err)
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return nil, fmt.Errorf("pairing: write identity: %w", err)
	}

	return &Identity{SigningKey: priv, VerifyingKey: pub, Fingerprint: fingerprint, configPath: path}, nil
}

// Sign signs data with this identity's private key.
func (id *Identity) Sign(data []byte) []byte {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return ed25519.Sign(id.SigningKey, data)
}

// VerifyingKeyBase64 returns the public key as base64, for embedding in a
// pairing URL.
func (id *Identity) VerifyingKeyBase64() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return base64.StdEncoding.EncodeToString(id.VerifyingKey)
}

// Offer is the payload encoded into a pairing URL/QR code.
type Offer struct {
	SessionID string
	Addr      string // host:port (or tailnet hostname) the peer should dial
	PublicKey ed25519.PublicKey
}

// URL renders an Offer as an "openmux://pair" URL a peer app can scan and
// parse without needing this package.
func (o Offer) URL() string {
	v := url.Values{}
	v.Set("session", o.SessionID)
	v.Set("addr", o.Addr)
	v.Set("key", base64.StdEncoding.EncodeToString(o.PublicKey))
	u := url.URL{Scheme: "openmux", Host: "pair", RawQuery: v.Encode()}
	return u.String()
}

// ParseOffer parses a pairing URL produced by Offer.URL.
func ParseOffer(raw string) (Offer, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Offer{}, fmt.Errorf("pairing: parse offer url: %w", err)
	}
	q := u.Query()
	keyBytes, err := base64.StdEncoding.DecodeString(q.Get("key"))
	if err != nil || len(keyBytes) != ed25519.PublicKeySize {
		return Offer{}, fmt.Errorf("pairing: invalid public key in offer")
	}
	return Offer{
		SessionID: q.Get("session"),
		Addr:      q.Get("addr"),
		PublicKey: ed25519.PublicKey(keyBytes),
	}, nil
}

// Peer is an accepted remote identity allowed to use the bridge/attach
// transports.
type Peer struct {
	PublicKey   ed25519.PublicKey
	Fingerprint string
}

// Accept verifies a peer's signed challenge response and returns the
// accepted Peer. challenge is whatever nonce the host sent the peer to
// sign (e.g. over the bridge handshake); sig is the peer's signature over
// it.
func Accept(peerKey ed25519.PublicKey, challenge, sig []byte) (Peer, error) {
	if len(peerKey) != ed25519.PublicKeySize {
		return Peer{}, fmt.Errorf("pairing: invalid peer public key length %d", len(peerKey))
	}
	if !ed25519.Verify(peerKey, challenge, sig) {
		return Peer{}, fmt.Errorf("pairing: signature verification failed")
	}
	return Peer{PublicKey: peerKey, Fingerprint: Fingerprint(peerKey)}, nil
}

// QRLines renders data as terminal-printable lines using Unicode half-block
// characters (2 QR modules per terminal row, matching the ~2:1 height:width
// aspect ratio of a monospace cell). inverted swaps which half-blocks count
// as "dark", for light-on-dark terminal themes. Returns a placeholder
// message if the code can't fit within maxWidth x maxHeight at any
// recovery level.
func QRLines(data string, maxWidth, maxHeight uint16, inverted bool) []string {
	for _, level := range []qrcode.RecoveryLevel{qrcode.High, qrcode.Medium, qrcode.Low} {
		qr, err := qrcode.New(data, level)
		if err != nil {
			continue
		}
		bitmap := qr.Bitmap()
		if len(bitmap) == 0 || len(bitmap[0]) == 0 {
			continue
		}
		size := len(bitmap)
		width, height := uint16(size), uint16((size+1)/2)
		if width > maxWidth || height > maxHeight {
			continue
		}
		return renderHalfBlocks(bitmap, size, inverted)
	}
	return []string{
		"pairing QR code does not fit in this terminal",
		"resize the window and try again",
	}
}

func renderHalfBlocks(bitmap [][]bool, size int, inverted bool) []string {
	lines := make([]string, 0, (size+1)/2)
	for rowPair := 0; rowPair < (size+1)/2; rowPair++ {
		upperY, lowerY := rowPair*2, rowPair*2+1
		var sb strings.Builder
		sb.Grow(size * 3)
		for x := 0; x < size; x++ {
			upper := bitmap[upperY][x]
			lower := lowerY < size && bitmap[lowerY][x]
			if inverted {
				upper, lower = !upper, !lower
			}
			sb.WriteRune(halfBlockRune(upper, lower))
		}
		lines = append(lines, sb.String())
	}
	return lines
}

func halfBlockRune(upper, lower bool) rune {
	switch {
	case upper && lower:
		return '█'
	case upper:
		return '▀'
	case lower:
		return '▄'
	default:
		return ' '
	}
}

// QRDimensions returns the terminal column/row footprint a QR code for data
// would need at medium error-correction, or (0, 0) if encoding fails.
func QRDimensions(data string) (uint16, uint16) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return 0, 0
	}
	bitmap := qr.Bitmap()
	if len(bitmap) == 0 {
		return 0, 0
	}
	size := len(bitmap)
	return uint16(size), uint16((size + 1) / 2)
}
