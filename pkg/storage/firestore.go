package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DaySeriesVersion is stored next to every day series document so readers
// can detect documents written by an older layout.
const DaySeriesVersion = 1

// FirestoreProvider implements the Database interface using Google Cloud Firestore.
// Every record is stored as a JSON blob under instances/{instanceID}.
type FirestoreProvider struct {
	client     *firestore.Client
	projectID  string
	database   string
	instanceID string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	instanceID := lflag.String("firestore-instance-id", "default", "Document under instances/ that holds this deployment's data")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.instanceID = *instanceID

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	if f.instanceID == "" {
		return fmt.Errorf("firestore-instance-id cannot be empty")
	}
	if strings.Contains(f.instanceID, "/") {
		return fmt.Errorf("firestore-instance-id cannot contain '/'")
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

func (f *FirestoreProvider) collection(name string) *firestore.CollectionRef {
	return f.client.Collection("instances").Doc(f.instanceID).Collection(name)
}

func areaDocID(area, suffix string) (string, error) {
	if area == "" {
		return "", fmt.Errorf("area cannot be empty")
	}
	return strings.ToUpper(area) + "_" + suffix, nil
}

// getJSON reads the "json" field of doc into v. found is false when the
// document does not exist.
func getJSON(ctx context.Context, ref *firestore.DocumentRef, v any) (found bool, version int, err error) {
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to fetch %s: %w", ref.Path, err)
	}
	return true, docVersion(doc), decodeJSON(ctx, doc, v)
}

func docVersion(doc *firestore.DocumentSnapshot) int {
	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}
	return version
}

func decodeJSON(ctx context.Context, doc *firestore.DocumentSnapshot, v any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("doc", doc.Ref.ID))
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("doc", doc.Ref.ID))
		return fmt.Errorf("document %s 'json' field is not a string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc json", slog.String("doc", doc.Ref.ID), slog.Any("err", err))
		return fmt.Errorf("failed to unmarshal %s json: %w", doc.Ref.ID, err)
	}
	return nil
}

// GetSettings retrieves the dynamic configuration from the "config/settings" document.
func (f *FirestoreProvider) GetSettings(ctx context.Context) (types.Settings, int, error) {
	var s types.Settings
	found, version, err := getJSON(ctx, f.collection("config").Doc("settings"), &s)
	if err != nil || !found {
		// Return default settings if not found
		return types.Settings{}, 0, err
	}
	return s, version, nil
}

// SetSettings saves the dynamic configuration to the "config/settings" document.
// It stores the settings as a JSON string for portability.
func (f *FirestoreProvider) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = f.collection("config").Doc("settings").Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GetOverrides retrieves the live overrides from the "config/overrides" document.
func (f *FirestoreProvider) GetOverrides(ctx context.Context) (types.Overrides, error) {
	var o types.Overrides
	if _, _, err := getJSON(ctx, f.collection("config").Doc("overrides"), &o); err != nil {
		return types.Overrides{}, err
	}
	return o, nil
}

// SetOverrides saves the live overrides to the "config/overrides" document.
func (f *FirestoreProvider) SetOverrides(ctx context.Context, overrides types.Overrides) error {
	jsonBytes, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}
	_, err = f.collection("config").Doc("overrides").Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"updated": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save overrides: %w", err)
	}
	return nil
}

// UpsertDaySeries stores a day series in the "day_series" collection. The
// document ID is AREA_YYYY-MM-DD so ranges can be queried by ID.
func (f *FirestoreProvider) UpsertDaySeries(ctx context.Context, area string, series types.DaySeries) error {
	docID, err := areaDocID(area, series.Date.String())
	if err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("failed to marshal day series: %w", err)
	}
	_, err = f.collection("day_series").Doc(docID).Set(ctx, map[string]interface{}{
		"json":          string(jsonBytes),
		"area":          strings.ToUpper(area),
		"dataAvailable": series.DataAvailable,
		"version":       DaySeriesVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert day series %s: %w", docID, err)
	}
	return nil
}

// GetDaySeries retrieves stored day series within [start, end).
// Uses document ID range queries for efficient filtering without reading all documents.
func (f *FirestoreProvider) GetDaySeries(ctx context.Context, area string, start, end civil.Date) ([]types.DaySeries, error) {
	startDocID, err := areaDocID(area, start.String())
	if err != nil {
		return nil, err
	}
	endDocID, _ := areaDocID(area, end.String())

	coll := f.collection("day_series")
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var days []types.DaySeries
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate day series: %w", err)
		}
		if v := docVersion(doc); v != DaySeriesVersion {
			log.Ctx(ctx).WarnContext(ctx, "skipping day series with unknown version", slog.String("doc", doc.Ref.ID), slog.Int("version", v))
			continue
		}
		var d types.DaySeries
		if err := decodeJSON(ctx, doc, &d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

// PutAnalysis stores an analysis result in the "analysis" collection keyed by
// area and the RFC3339 time of the analysis.
func (f *FirestoreProvider) PutAnalysis(ctx context.Context, area string, result types.CheapAnalysisResult) error {
	docID, err := areaDocID(area, result.LastUpdate.UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}
	_, err = f.collection("analysis").Doc(docID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"area":      strings.ToUpper(area),
		"timestamp": result.LastUpdate,
	})
	if err != nil {
		return fmt.Errorf("failed to put analysis: %w", err)
	}
	return nil
}

// GetLatestAnalysis retrieves the newest stored analysis for area.
func (f *FirestoreProvider) GetLatestAnalysis(ctx context.Context, area string) (types.CheapAnalysisResult, error) {
	if area == "" {
		return types.CheapAnalysisResult{}, fmt.Errorf("area cannot be empty")
	}
	iter := f.collection("analysis").
		Where("area", "==", strings.ToUpper(area)).
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.CheapAnalysisResult{}, types.ErrNotFound
	}
	if err != nil {
		return types.CheapAnalysisResult{}, fmt.Errorf("failed to get latest analysis: %w", err)
	}
	var r types.CheapAnalysisResult
	if err := decodeJSON(ctx, doc, &r); err != nil {
		return types.CheapAnalysisResult{}, err
	}
	return r, nil
}
