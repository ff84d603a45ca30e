package event

// TaskStatusChangedResult is the outcome of a task.status.changed event.
type TaskStatusChangedResult struct {
	MatchedTasks int `json:"matchedTasks"`
}

// MeetingIngestedResult is the outcome of a meeting.ingested event.
type MeetingIngestedResult struct {
	People            PeopleCounts `json:"people"`
	Tasks             TaskCounts   `json:"tasks"`
	BoardItemsCreated int          `json:"boardItemsCreated"`
}

// PeopleCounts counts person records touched by an ingestion.
type PeopleCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// TaskCounts counts canonical tasks touched by an ingestion.
type TaskCounts struct {
	Upserted int `json:"upserted"`
	Deleted  int `json:"deleted"`
}

// BoardItemUpdatedResult is the outcome of a board.item.updated event.
type BoardItemUpdatedResult struct {
	Updated bool   `json:"updated"`
	TaskID  string `json:"taskId"`
}

// Placeholder returns the zero-value result for t. Async publishers
// receive it before any side effect has been applied. Unknown types
// yield nil.
func Placeholder(t Type) any {
	switch t {
	case TypeTaskStatusChanged:
		return TaskStatusChangedResult{}
	case TypeMeetingIngested:
		return MeetingIngestedResult{}
	case TypeBoardItemUpdated:
		return BoardItemUpdatedResult{}
	}
	return nil
}
