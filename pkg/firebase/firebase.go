package firebase

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/golang/glog"
	"google.golang.org/api/option"
)

// App holds the initialized Firebase app and the clients built from it
type App struct {
	FirebaseApp *firebase.App
	AuthClient  *auth.Client
	Firestore   *firestore.Client
	Bucket      *gcs.BucketHandle
}

// Options selects which clients InitFirebase builds
type Options struct {
	CredentialsPath string
	StorageBucket   string
	Firestore       bool
}

// InitFirebase initializes the Firebase application, its auth client and,
// when asked for, the Firestore client and the default storage bucket
func InitFirebase(ctx context.Context, opts Options) (*App, error) {
	if opts.CredentialsPath == "" {
		return nil, fmt.Errorf("firebase credentials path not provided")
	}

	if _, err := os.Stat(opts.CredentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("firebase credentials file not found at %s", opts.CredentialsPath)
	}

	conf := &firebase.Config{StorageBucket: opts.StorageBucket}
	firebaseApp, err := firebase.NewApp(ctx, conf, option.WithCredentialsFile(opts.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}
	app := &App{FirebaseApp: firebaseApp, AuthClient: authClient}

	if opts.Firestore {
		app.Firestore, err = firebaseApp.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firestore client: %w", err)
		}
	}

	if opts.StorageBucket != "" {
		storageClient, err := firebaseApp.Storage(ctx)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("error getting firebase storage client: %w", err)
		}
		app.Bucket, err = storageClient.DefaultBucket()
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("error getting storage bucket %s: %w", opts.StorageBucket, err)
		}
	}

	glog.Infof("[firebase]app initialized (firestore=%t bucket=%q)\n", app.Firestore != nil, opts.StorageBucket)
	return app, nil
}

// Close releases the Firestore client
func (a *App) Close() {
	if a.Firestore == nil {
		return
	}
	if err := a.Firestore.Close(); err != nil {
		glog.Errorf("[firebase]close firestore = %s\n", err)
	}
}
