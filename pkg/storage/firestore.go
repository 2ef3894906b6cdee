package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/genesismon/genesismon/pkg/log"
	"github.com/genesismon/genesismon/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. One daemon monitors one account, so every document lives under
// a single account namespace.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
	accountID string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	accountID := lflag.String("firestore-account", "default", "Account namespace documents are stored under")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.accountID = *accountID

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	if f.accountID == "" {
		return fmt.Errorf("firestore account namespace cannot be empty")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) usageCollection(fuel types.FuelType) (*firestore.CollectionRef, error) {
	if fuel != types.FuelElectricity && fuel != types.FuelGas {
		return nil, fmt.Errorf("unknown fuel type: %s", fuel)
	}
	return f.client.Collection("accounts").Doc(f.accountID).Collection("usage_" + string(fuel)), nil
}

func (f *FirestoreProvider) stateDoc() *firestore.DocumentRef {
	return f.client.Collection("accounts").Doc(f.accountID).Collection("state").Doc("snapshot")
}

// UpsertUsageRecords adds or updates hourly usage records for a fuel. The
// document ID is the RFC3339 timestamp of TSHourStart for lexicographic
// ordering and efficient range queries.
func (f *FirestoreProvider) UpsertUsageRecords(ctx context.Context, fuel types.FuelType, records []types.UsageRecord) error {
	coll, err := f.usageCollection(fuel)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.TSHourStart.IsZero() {
			return fmt.Errorf("usage record missing tsHourStart")
		}
		jsonBytes, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal usage record: %w", err)
		}
		docID := rec.TSHourStart.UTC().Format(time.RFC3339)
		if _, err := coll.Doc(docID).Set(ctx, map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": rec.TSHourStart,
		}); err != nil {
			return fmt.Errorf("failed to upsert usage record %s: %w", docID, err)
		}
	}
	return nil
}

// GetUsageHistory retrieves usage records within the specified time range for
// a fuel. The end of the range is exclusive. Uses document ID range queries
// for efficient filtering without reading all documents.
func (f *FirestoreProvider) GetUsageHistory(ctx context.Context, fuel types.FuelType, start, end time.Time) ([]types.UsageRecord, error) {
	startDocID := start.Truncate(time.Hour).UTC().Format(time.RFC3339)
	endDocID := end.Truncate(time.Hour).UTC().Format(time.RFC3339)

	coll, err := f.usageCollection(fuel)
	if err != nil {
		return nil, err
	}
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var records []types.UsageRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating usage records: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "usage doc missing json", slog.String("docID", doc.Ref.ID), slog.String("fuel", string(fuel)), slog.Any("err", err))
			return nil, fmt.Errorf("usage document %s missing 'json' field: %w", doc.Ref.ID, err)
		}

		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "usage doc json not string", slog.String("docID", doc.Ref.ID), slog.String("fuel", string(fuel)))
			return nil, fmt.Errorf("usage document %s 'json' field is not string", doc.Ref.ID)
		}

		var rec types.UsageRecord
		if err := json.Unmarshal([]byte(jsonStr), &rec); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal usage record", slog.String("docID", doc.Ref.ID), slog.String("fuel", string(fuel)), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal usage record (id=%s): %w", doc.Ref.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetLatestUsageTime retrieves the hour of the last stored usage record for a
// fuel, or the zero time when nothing is stored yet.
func (f *FirestoreProvider) GetLatestUsageTime(ctx context.Context, fuel types.FuelType) (time.Time, error) {
	coll, err := f.usageCollection(fuel)
	if err != nil {
		return time.Time{}, err
	}

	// firestore automatically creates indexes for top-level fields
	iter := coll.
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest usage doc: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, doc.Ref.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid usage doc id %s: %w", doc.Ref.ID, err)
	}
	return ts, nil
}

// SetSnapshot saves the most recent poll result.
func (f *FirestoreProvider) SetSnapshot(ctx context.Context, snap types.Snapshot) error {
	jsonBytes, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = f.stateDoc().Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": snap.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the most recent poll result, or a zero snapshot when
// nothing has been stored yet.
func (f *FirestoreProvider) GetSnapshot(ctx context.Context) (types.Snapshot, error) {
	doc, err := f.stateDoc().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Snapshot{}, nil
		}
		return types.Snapshot{}, fmt.Errorf("failed to fetch snapshot doc: %w", err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "snapshot doc missing json", slog.Any("err", err))
		return types.Snapshot{}, fmt.Errorf("snapshot document missing 'json' field: %w", err)
	}

	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "snapshot doc json not string")
		return types.Snapshot{}, fmt.Errorf("snapshot 'json' field is not a string")
	}

	var snap types.Snapshot
	if err := json.Unmarshal([]byte(jsonStr), &snap); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal snapshot json", slog.Any("err", err))
		return types.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot json: %w", err)
	}
	return snap, nil
}
