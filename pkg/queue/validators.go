package queue

type EnqueuePayload struct {
	ContentID         int     `json:"content_id" validate:"required,min=1"`
	TargetImageStatus *string `json:"target_image_status,omitempty" validate:"omitempty,image_status"`
}

type MovePayload struct {
	From int `json:"from" validate:"min=0"`
	To   int `json:"to" validate:"min=0"`
}

type RetryCountPayload struct {
	RetryCount int `json:"retry_count" validate:"min=0"`
}

type CleanupPayload struct {
	Target string `json:"target" validate:"required,oneof=library queue"`
}

// ItemResponse is an Entry with the state a client should show for it.
type ItemResponse struct {
	*Entry
	State string `json:"state"`
}
