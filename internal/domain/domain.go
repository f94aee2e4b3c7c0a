package domain

import "time"

type SignalLabel string

const (
	SignalBuy      SignalLabel = "Buy"
	SignalHoldSell SignalLabel = "Hold/Sell"
)

const (
	ModelFamilyBoost  = "boost"
	ModelFamilyLogReg = "logreg"
)

// ModelVersion is one persisted trained-model record in the registry.
// The artifact blob is the model's JSON serialization together with the
// ordered feature-name list it was fit on.
type ModelVersion struct {
	ID                 int64
	ModelKey           string
	Version            int
	FeatureSpecVersion string
	TrainedFrom        time.Time
	TrainedTo          time.Time
	TrainedAt          time.Time
	HyperparamsJSON    string
	MetricsJSON        string
	ArtifactFormat     string
	ArtifactBlob       []byte
	IsActive           bool
	ActivatedAt        *time.Time
	CreatedAt          time.Time
}

// StudyRecord is one persisted hyperparameter-search session.
type StudyRecord struct {
	ID             int64
	Ticker         string
	Trials         int
	FailedTrials   int
	BestScore      float64
	BestParamsJSON string
	CreatedAt      time.Time
}
