package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enums

// JobStage is a position in the forward-only pipeline state machine.
type JobStage string

const (
	StageStart           JobStage = "START"
	StageScriptGenerated JobStage = "SCRIPT_GENERATED"
	StageAvatarRendered  JobStage = "AVATAR_RENDERED"
	StageScenesPlanned   JobStage = "SCENES_PLANNED"
	StageScenesRendered  JobStage = "SCENES_RENDERED"
	StageComposited      JobStage = "COMPOSITED"
	StageCaptioned       JobStage = "CAPTIONED"
	StageDone            JobStage = "DONE"
	StageFailed          JobStage = "FAILED"
)

// IsHard reports whether a failure while producing this stage aborts the job.
// Script, avatar and composition are mandatory; planning, scene rendering and
// captioning degrade the result instead.
func (s JobStage) IsHard() bool {
	switch s {
	case StageScriptGenerated, StageAvatarRendered, StageComposited:
		return true
	default:
		return false
	}
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

type ArtifactType string

const (
	ArtifactTypeAvatarVideo    ArtifactType = "avatar_video"
	ArtifactTypeSceneVideo     ArtifactType = "scene_video"
	ArtifactTypeCompositeVideo ArtifactType = "composite_video"
	ArtifactTypeCaptionedVideo ArtifactType = "captioned_video"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// ToJSONB converts any JSON-serialisable value into a JSONB column value.
func ToJSONB(v interface{}) (JSONB, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var j JSONB
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return j, nil
}

// Decode unmarshals the column back into a typed value.
func (j JSONB) Decode(v interface{}) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Pipeline values

// ProductInfo is the structured product/brand description a job is built from.
type ProductInfo struct {
	ProductName     string `json:"product_name" validate:"required,max=200"`
	Language        string `json:"language" validate:"omitempty,max=32"`
	Description     string `json:"description" validate:"required,max=4000"`
	Price           string `json:"price,omitempty" validate:"max=100"`
	PromotionDetail string `json:"promotion_detail,omitempty" validate:"max=1000"`
	TargetAudience  string `json:"target_audience,omitempty" validate:"max=1000"`
	ProductImageB64 string `json:"product_image_b64,omitempty" validate:"omitempty,base64"`
}

// TranscriptSegment is one timed line of the narrated base video.
type TranscriptSegment struct {
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
	Text  string  `json:"text"`
}

// SceneDescription is one planned b-roll unit covering [Start, End) on the base timeline.
type SceneDescription struct {
	Index        int     `json:"index"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Description  string  `json:"description"`
	ArtifactPath string  `json:"artifact_path,omitempty"`
	StaticPrompt string  `json:"static_prompt,omitempty"`
	MotionPrompt string  `json:"motion_prompt,omitempty"`
}

// Overlaps reports whether two half-open windows share any instant.
func (s SceneDescription) Overlaps(o SceneDescription) bool {
	return s.Start < o.End && o.Start < s.End
}

// RenderedScene is a scene whose clip exists on disk. Failed scenes never become one.
type RenderedScene struct {
	SceneDescription
	VideoPath string `json:"video_path"`
}

// CompositionPlan is the immutable input to the compositor backend.
// Scenes are sorted by Start.
type CompositionPlan struct {
	BasePath     string          `json:"base_path"`
	BaseDuration float64         `json:"base_duration"` // seconds, 0 when unknown
	Width        int             `json:"width,omitempty"`
	Height       int             `json:"height,omitempty"`
	Scenes       []RenderedScene `json:"scenes"`
}

// SceneFailure records a dropped scene.
type SceneFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// JobFailure is the structured terminal failure: the stage that could not be
// produced plus the underlying error.
type JobFailure struct {
	Stage JobStage `json:"stage"`
	Error string   `json:"error"`
}

// JobResult is what a pipeline run reports, successful or not.
type JobResult struct {
	JobID              uuid.UUID          `json:"job_id"`
	WorkDir            string             `json:"work_dir"`
	Stage              JobStage           `json:"stage"`
	Script             string             `json:"script,omitempty"`
	AvatarVideoPath    string             `json:"avatar_video_path,omitempty"`
	CompositeVideoPath string             `json:"composite_video_path,omitempty"`
	CaptionedVideoPath string             `json:"captioned_video_path,omitempty"`
	FinalVideoPath     string             `json:"final_video_path,omitempty"`
	Scenes             []SceneDescription `json:"scenes,omitempty"`
	ScenesPlanned      int                `json:"scenes_planned"`
	ScenesRendered     int                `json:"scenes_rendered"`
	SceneFailures      []SceneFailure     `json:"scene_failures,omitempty"`
	CaptioningError    string             `json:"captioning_error,omitempty"`
	Failure            *JobFailure        `json:"failure,omitempty"`
}

// Persistence models

type Job struct {
	ID              uuid.UUID  `json:"id"`
	Input           JSONB      `json:"input"`
	Stage           JobStage   `json:"stage"`
	Status          JobStatus  `json:"status"`
	WorkDir         *string    `json:"work_dir,omitempty"`
	ScenesPlanned   int        `json:"scenes_planned"`
	ScenesRendered  int        `json:"scenes_rendered"`
	FinalVideoPath  *string    `json:"final_video_path,omitempty"`
	CaptioningError *string    `json:"captioning_error,omitempty"`
	FailedStage     *JobStage  `json:"failed_stage,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	Attempts        int        `json:"attempts"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type JobArtifact struct {
	ID          uuid.UUID    `json:"id"`
	JobID       uuid.UUID    `json:"job_id"`
	Type        ArtifactType `json:"type"`
	SceneIndex  *int         `json:"scene_index,omitempty"`
	LocalPath   string       `json:"local_path"`
	StorageURL  *string      `json:"storage_url,omitempty"`
	ContentType *string      `json:"content_type,omitempty"`
	ByteSize    *int64       `json:"byte_size,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// DTOs for API requests and responses

type CreateJobRequest struct {
	ProductInfo
	AvatarID string `json:"avatar_id,omitempty" validate:"omitempty,max=64"`
	VoiceID  string `json:"voice_id,omitempty" validate:"omitempty,max=64"`
}

type CreateJobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
	Stage  JobStage  `json:"stage"`
}

type JobResponse struct {
	Job
	FinalVideoURL *string       `json:"final_video_url,omitempty"`
	Artifacts     []JobArtifact `json:"artifacts,omitempty"`
}

type ListJobsResponse struct {
	Jobs   []Job `json:"jobs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
