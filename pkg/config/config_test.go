package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "PUBLIC_BASE_URL", "POSTGRES_CONN_STR", "FEED_BACKEND", "FEED_COLLECTION",
		"FEED_WINDOW_SIZE", "FIREBASE_CREDENTIALS_PATH", "FIREBASE_STORAGE_BUCKET", "MONGO_URI",
		"MONGO_DATABASE", "AUTH_MODE", "JWT_SECRET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	assert.Equal(t, err, nil)
	assert.Equal(t, cfg.Port, "8080")
	assert.Equal(t, cfg.Feed.Backend, BackendMemory)
	assert.Equal(t, cfg.Feed.Collection, "messages")
	assert.Equal(t, cfg.Feed.WindowSize, 12)
	assert.Equal(t, cfg.Auth.Mode, AuthJWT)
	assert.Equal(t, cfg.PublicBaseURL, "http://localhost:8080")
	assert.Equal(t, cfg.NeedsFirebase(), false)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "livechat.yaml")
	err := os.WriteFile(path, []byte(`
port: "9000"
feed:
  backend: mongo
  window_size: 20
mongo:
  uri: mongodb://localhost:27017/?replicaSet=rs0
`), 0o600)
	assert.Equal(t, err, nil)

	t.Setenv("FEED_WINDOW_SIZE", "30")
	t.Setenv("MONGO_DATABASE", "chat")

	cfg, err := Load(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, cfg.Port, "9000")
	assert.Equal(t, cfg.Feed.Backend, BackendMongo)
	assert.Equal(t, cfg.Feed.Collection, "messages")
	assert.Equal(t, cfg.Feed.WindowSize, 30)
	assert.Equal(t, cfg.Mongo.Database, "chat")
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)

	t.Setenv("FEED_BACKEND", "redis")
	_, err := Load("")
	assert.NotEqual(t, err, nil)

	t.Setenv("FEED_BACKEND", BackendFirestore)
	_, err = Load("")
	assert.NotEqual(t, err, nil)

	t.Setenv("FEED_BACKEND", BackendMongo)
	_, err = Load("")
	assert.NotEqual(t, err, nil)

	t.Setenv("FEED_BACKEND", "")
	t.Setenv("FEED_WINDOW_SIZE", "zero")
	_, err = Load("")
	assert.NotEqual(t, err, nil)

	t.Setenv("FEED_WINDOW_SIZE", "0")
	_, err = Load("")
	assert.NotEqual(t, err, nil)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotEqual(t, err, nil)
}

func TestLoadFirestore(t *testing.T) {
	clearEnv(t)
	t.Setenv("FEED_BACKEND", BackendFirestore)
	t.Setenv("FIREBASE_CREDENTIALS_PATH", "/secrets/firebase.json")
	t.Setenv("FIREBASE_STORAGE_BUCKET", "friendlychat.appspot.com")

	cfg, err := Load("")
	assert.Equal(t, err, nil)
	assert.Equal(t, cfg.NeedsFirebase(), true)
}
