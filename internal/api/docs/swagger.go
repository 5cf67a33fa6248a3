package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// IdentityResponse represents an enrolled identity
type IdentityResponse struct {
	IdentityID     string   `json:"identity_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	DisplayName    string   `json:"display_name" example:"Alice"`
	SampleCount    int      `json:"enrollment_sample_count" example:"5"`
	ActiveMatchers []string `json:"active_matchers" example:"feature,lbph,eigenfaces,fisherfaces"`
	Degraded       bool     `json:"degraded" example:"false"`
	CreatedAt      string   `json:"created_at" example:"2024-01-01T00:00:00Z"`
	UpdatedAt      string   `json:"updated_at" example:"2024-01-01T00:00:00Z"`
}

// ListIdentitiesResponse represents the list of enrolled identities
type ListIdentitiesResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total" example:"1"`
}

// MatcherScore represents one matcher's opinion on a probe
type MatcherScore struct {
	Matcher    string  `json:"matcher" example:"lbph"`
	Confidence float64 `json:"confidence" example:"0.91"`
	Error      string  `json:"error,omitempty" example:""`
}

// AuthenticateResponse represents the outcome of an authentication
type AuthenticateResponse struct {
	Recognized bool           `json:"recognized" example:"true"`
	IdentityID string         `json:"identity_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Confidence float64        `json:"confidence" example:"0.92"`
	Attempts   int            `json:"attempts" example:"2"`
	LatencyMs  int64          `json:"latency_ms" example:"180"`
	Breakdown  []MatcherScore `json:"breakdown"`
}

// CameraStatusResponse represents the capture controller state
type CameraStatusResponse struct {
	State    string `json:"state" example:"idle"`
	Backend  string `json:"backend" example:"gocv"`
	Index    int    `json:"index,omitempty" example:"0"`
	API      string `json:"api,omitempty" example:"v4l2"`
	Strategy string `json:"strategy,omitempty" example:"default"`
}

// ReadyResponse represents the readiness probe
type ReadyResponse struct {
	Status     string   `json:"status" example:"ready"`
	Database   string   `json:"database" example:"ok"`
	Matchers   []string `json:"matchers" example:"feature,lbph"`
	Trained    []string `json:"trained" example:"lbph"`
	Identities int      `json:"identities" example:"12"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

var internalError = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "FaceAuth API",
		Version:     "v1.0.0",
		Description: "Facial biometric enrollment and authentication engine",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /v1/identities - Enroll identity
		endpoint.New(
			endpoint.POST,
			"/identities",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Enroll a new identity"),
			endpoint.WithDescription("Enrolls an identity from several face images uploaded under the images field. At least MIN_ENROLLMENT_SAMPLES images must contain a detectable face."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IdentityResponse{}, "201", "Identity enrolled"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "IDENTITY_ALREADY_EXISTS", Message: "Identity already exists"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "TOO_FEW_VALID_SAMPLES", Message: "Too few enrollment samples contain a detectable face"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid or corrupted image"}, "422", "Unprocessable Entity"),
				internalError,
			}),
		),

		// GET /v1/identities - List identities
		endpoint.New(
			endpoint.GET,
			"/identities",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("List enrolled identities"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ListIdentitiesResponse{}, "200", "Identities retrieved"),
			}),
			endpoint.WithErrors([]response.Response{internalError}),
		),

		// GET /v1/identities/{id} - Get identity
		endpoint.New(
			endpoint.GET,
			"/identities/{id}",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Get an enrolled identity"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Identity ID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IdentityResponse{}, "200", "Identity retrieved"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "IDENTITY_NOT_FOUND", Message: "Identity not found"}, "404", "Not Found"),
				internalError,
			}),
		),

		// PUT /v1/identities/{id} - Re-enroll identity
		endpoint.New(
			endpoint.PUT,
			"/identities/{id}",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Re-enroll an identity"),
			endpoint.WithDescription("Replaces the face profile of an identity. The previous profile keeps matching until the new one is committed."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Identity ID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IdentityResponse{}, "200", "Identity re-enrolled"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "IDENTITY_NOT_FOUND", Message: "Identity not found"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "TOO_FEW_VALID_SAMPLES", Message: "Too few enrollment samples contain a detectable face"}, "422", "Unprocessable Entity"),
				internalError,
			}),
		),

		// POST /v1/authenticate - Authenticate an uploaded image
		endpoint.New(
			endpoint.POST,
			"/authenticate",
			endpoint.WithTags("Authentication"),
			endpoint.WithSummary("Authenticate a face image"),
			endpoint.WithDescription("Matches the uploaded image against every enrolled identity. A rejected probe returns recognized=false."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AuthenticateResponse{}, "200", "Authentication decided"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in image"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded"}, "429", "Too Many Requests"),
				response.New(ErrorResponse{Code: "MATCHER_UNAVAILABLE", Message: "No matcher is available"}, "503", "Service Unavailable"),
				internalError,
			}),
		),

		// POST /v1/authenticate/camera - Authenticate from the camera
		endpoint.New(
			endpoint.POST,
			"/authenticate/camera",
			endpoint.WithTags("Authentication"),
			endpoint.WithSummary("Authenticate a live face from the camera"),
			endpoint.WithDescription("Acquires the camera, runs up to AUTH_MAX_ATTEMPTS capture and match rounds and releases the camera."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("index", parameter.Query, parameter.WithDescription("Camera index overriding CAMERA_INDEX")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AuthenticateResponse{}, "200", "Authentication decided"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "DEVICE_BUSY", Message: "Camera is in use"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in image"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded"}, "429", "Too Many Requests"),
				response.New(ErrorResponse{Code: "DEVICE_ABSENT", Message: "No camera device available"}, "503", "Service Unavailable"),
				response.New(ErrorResponse{Code: "DEVICE_ERROR", Message: "Camera failed during authentication"}, "503", "Service Unavailable"),
				internalError,
			}),
		),

		// GET /v1/camera - Camera status
		endpoint.New(
			endpoint.GET,
			"/camera",
			endpoint.WithTags("Camera"),
			endpoint.WithSummary("Get camera controller status"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CameraStatusResponse{}, "200", "Camera status"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
