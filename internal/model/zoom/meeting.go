package zoom

import "time"

// User is the subset of /users/{id} the service consumes.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// Meeting mirrors an item of /users/{id}/meetings.
type Meeting struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid,omitempty"`
	HostID    string    `json:"host_id,omitempty"`
	Topic     string    `json:"topic"`
	Type      int       `json:"type"`
	StartTime time.Time `json:"start_time,omitempty"`
	Duration  int       `json:"duration,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
	JoinURL   string    `json:"join_url,omitempty"`
}

// MeetingList is a page of meetings.
type MeetingList struct {
	PageSize      int       `json:"page_size"`
	TotalRecords  int       `json:"total_records"`
	NextPageToken string    `json:"next_page_token,omitempty"`
	Meetings      []Meeting `json:"meetings"`
}

// Meeting list filters accepted by the API.
const (
	MeetingTypeScheduled = "scheduled"
	MeetingTypeLive      = "live"
	MeetingTypeUpcoming  = "upcoming"
)

// Participant is an attendee reported by the metrics API.
type Participant struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	UserName  string    `json:"user_name"`
	Email     string    `json:"email,omitempty"`
	JoinTime  time.Time `json:"join_time,omitempty"`
	LeaveTime time.Time `json:"leave_time,omitempty"`
}

// ParticipantList is a page of participants.
type ParticipantList struct {
	PageSize      int           `json:"page_size"`
	TotalRecords  int           `json:"total_records"`
	NextPageToken string        `json:"next_page_token,omitempty"`
	Participants  []Participant `json:"participants"`
}

// RecordingFile is one artifact of a cloud recording.
type RecordingFile struct {
	ID            string `json:"id"`
	FileType      string `json:"file_type"`
	FileSize      int64  `json:"file_size"`
	RecordingType string `json:"recording_type,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
	Status        string `json:"status,omitempty"`
}

// Recording is the cloud recording set of one meeting instance.
type Recording struct {
	UUID           string          `json:"uuid"`
	ID             int64           `json:"id"`
	Topic          string          `json:"topic"`
	StartTime      time.Time       `json:"start_time,omitempty"`
	TotalSize      int64           `json:"total_size"`
	RecordingCount int             `json:"recording_count"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}
