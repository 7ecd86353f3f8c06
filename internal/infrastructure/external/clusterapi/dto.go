package clusterapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

// StudentFeaturesDTO is one element of the request array.
type StudentFeaturesDTO struct {
	StudentID            int64    `json:"student_id"`
	AttendancePercentage *float64 `json:"attendance_percentage"`
	AverageScore         *float64 `json:"average_score"`
	AverageDaysLate      *float64 `json:"average_days_late"`
	SubmissionRate       *float64 `json:"submission_rate"`
}

func toDTOs(students []cluster.Features) []StudentFeaturesDTO {
	out := make([]StudentFeaturesDTO, len(students))
	for i, s := range students {
		out[i] = StudentFeaturesDTO{
			StudentID:            s.StudentID,
			AttendancePercentage: s.AttendancePercentage,
			AverageScore:         s.AverageScore,
			AverageDaysLate:      s.AverageDaysLate,
			SubmissionRate:       s.SubmissionRate,
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// ClusterDTO is one element of the response array.
type ClusterDTO struct {
	StudentID       flexNumber `json:"student_id"`
	Cluster         flexNumber `json:"cluster"`
	ClusterLabel    *string    `json:"cluster_label"`
	SilhouetteScore flexNumber `json:"silhouette_score"`
}

// flexNumber accepts a JSON number, a numeric string or null. Strings such as
// "nan" decode as absent.
type flexNumber struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		n.Value = nil
		return nil
	}

	raw := string(data)
	quoted := strings.HasPrefix(raw, `"`)
	if quoted {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if quoted {
			n.Value = nil
			return nil
		}
		return fmt.Errorf("invalid number %s", data)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		n.Value = nil
		return nil
	}
	n.Value = &v
	return nil
}

// toAssignment converts a response element. ok is false without a student id.
func (d ClusterDTO) toAssignment() (cluster.Assignment, bool) {
	if d.StudentID.Value == nil {
		return cluster.Assignment{}, false
	}
	a := cluster.Assignment{StudentID: int64(*d.StudentID.Value)}
	if d.Cluster.Value != nil {
		n := int(*d.Cluster.Value)
		a.ClusterNumber = &n
	}
	if d.ClusterLabel != nil {
		a.Label = cluster.NormalizeLabel(*d.ClusterLabel)
	}
	return a, true
}
