package errorlog

import (
	"context"
	"unicode/utf8"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/stacks/pkg/models"
)

const maxDataValueLen = 1024

// ContentLogger logs download failures of one book to stdout and to the
// book's error log.
type ContentLogger struct {
	contentID int
	service   *Service
	log       logger.Logger
	ctx       context.Context
}

func (svc *Service) NewContentLogger(ctx context.Context, contentID int, log logger.Logger) *ContentLogger {
	return &ContentLogger{
		contentID: contentID,
		service:   svc,
		log:       log.Data(logger.Data{"content_id": contentID}),
		ctx:       ctx,
	}
}

// Failure records a failed step. url is the resource that failed, if any.
func (l *ContentLogger) Failure(errorType, url string, err error, data logger.Data) {
	msg := "download failure"
	if err != nil {
		msg = err.Error()
	}

	fields := logger.Data{"type": errorType}
	if url != "" {
		fields["url"] = url
	}
	if err != nil {
		l.log.Err(err).Warn("content download failure", fields)
	} else {
		l.log.Warn("content download failure", fields)
	}

	record := &models.ErrorRecord{
		ContentID:   l.contentID,
		Type:        errorType,
		Description: truncateMiddle(msg, maxDataValueLen),
		Data:        marshalData(data),
	}
	if url != "" {
		record.URL = &url
	}

	if err := l.service.RecordError(l.ctx, record); err != nil {
		l.log.Err(err).Error("failed to persist error record")
	}
}

func marshalData(data logger.Data) *string {
	if len(data) == 0 {
		return nil
	}
	truncated := make(logger.Data, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok && len(s) > maxDataValueLen {
			truncated[k] = truncateMiddle(s, maxDataValueLen)
		} else {
			truncated[k] = v
		}
	}
	b, err := json.Marshal(truncated)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// truncateMiddle keeps the start and end of s, maxLen runes in total.
func truncateMiddle(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	half := (maxLen - 5) / 2
	return string(r[:half]) + " ... " + string(r[len(r)-half:])
}
