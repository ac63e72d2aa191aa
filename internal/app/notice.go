package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/KaramelBytes/insightcopilot/internal/ai"
	"github.com/KaramelBytes/insightcopilot/internal/chart"
	"github.com/KaramelBytes/insightcopilot/internal/dataset"
)

// Level is the severity of a Notice.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notice is a user-facing message. Raw errors never cross the app boundary;
// they are mapped to a Notice instead.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// NoChartMessage is shown when chart code runs but produces no figure.
const NoChartMessage = "No chart was generated. Try rewording your prompt."

// ErrNoDataset is returned by actions that need an uploaded dataset.
var ErrNoDataset = errors.New("no dataset loaded")

func infof(format string, args ...any) *Notice {
	return &Notice{Level: LevelInfo, Message: fmt.Sprintf(format, args...)}
}

func warnf(format string, args ...any) *Notice {
	return &Notice{Level: LevelWarning, Message: fmt.Sprintf(format, args...)}
}

// NoticeFor maps err from the named action (e.g. "generating chart") to a
// user-facing notice.
func NoticeFor(action string, err error) *Notice {
	if err == nil {
		return nil
	}
	var (
		pe *dataset.ParseError
		ee *chart.ExecutionError
		le *ai.LLMError
	)
	switch {
	case errors.Is(err, ErrNoDataset):
		return warnf("Upload a CSV file first.")
	case errors.As(err, &pe):
		return &Notice{Level: LevelError, Message: fmt.Sprintf("Could not read the uploaded file: %v", err)}
	case errors.As(err, &ee):
		return warnf("Error %s: %s. Try rewording your prompt.", action, ee.Error())
	case errors.As(err, &le):
		return &Notice{Level: LevelError, Message: fmt.Sprintf("Error %s: %s", action, llmHint(le))}
	}
	return &Notice{Level: LevelError, Message: fmt.Sprintf("Error %s: %v", action, err)}
}

// llmHint turns a completion failure into an actionable sentence.
func llmHint(le *ai.LLMError) string {
	var (
		auth  *ai.AuthError
		rate  *ai.RateLimitError
		quota *ai.QuotaExceededError
		model *ai.ModelNotFoundError
		bad   *ai.BadRequestError
		srv   *ai.ServerError
		down  *ai.UnreachableError
		mal   *ai.MalformedResponseError
	)
	err := le.Err
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the model did not answer in time; try again or raise request_timeout_sec"
	case errors.Is(err, context.Canceled):
		return "the request was cancelled"
	case errors.As(err, &auth):
		return "the provider rejected the API key; check INSIGHTCOPILOT_API_KEY or OPENAI_API_KEY"
	case errors.As(err, &quota):
		return "the provider quota is exhausted; check your plan or billing"
	case errors.As(err, &rate):
		if rate.RetryAfter > 0 {
			return fmt.Sprintf("rate limited by the provider; retry in about %ds", int(rate.RetryAfter.Seconds()))
		}
		return "rate limited by the provider; wait a moment and retry"
	case errors.As(err, &model):
		return fmt.Sprintf("model %q is not available from this provider; pick another with --model", le.Model)
	case errors.As(err, &bad):
		return "the provider rejected the request: " + bad.APIError.Error()
	case errors.As(err, &srv):
		return "the provider had a server error; try again later"
	case errors.As(err, &down):
		return "could not reach the model endpoint; check your network or the ollama host"
	case errors.As(err, &mal):
		return "the model returned an empty or unreadable answer; try again"
	}
	return le.Error()
}
