package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"admissions-go/internal/models"
	"admissions-go/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// flexInt accepts a JSON number, a numeric string or a boolean. Anything
// else decodes to 0. Fractions are truncated and the result is clamped to
// the int32 range.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	*n = 0
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case float64:
		*n = toFlexInt(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			*n = toFlexInt(f)
		}
	case bool:
		if x {
			*n = 1
		}
	}
	return nil
}

func toFlexInt(f float64) flexInt {
	switch {
	case math.IsNaN(f), math.IsInf(f, 0):
		return 0
	case f > math.MaxInt32:
		return math.MaxInt32
	case f < math.MinInt32:
		return math.MinInt32
	}
	return flexInt(f)
}

// flexString accepts a string, number or boolean. Objects, arrays and null
// decode to "".
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	*s = ""
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case string:
		*s = flexString(x)
	case float64:
		*s = flexString(strconv.FormatFloat(x, 'f', -1, 64))
	case bool:
		*s = flexString(strconv.FormatBool(x))
	}
	return nil
}

// testResponses keeps the well-formed entries of a testResponses payload.
// A value that is not an array yields none.
type testResponses []models.TestResponse

func (r *testResponses) UnmarshalJSON(b []byte) error {
	*r = nil
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	for _, raw := range items {
		var tr models.TestResponse
		if err := json.Unmarshal(raw, &tr); err != nil {
			continue
		}
		*r = append(*r, tr)
	}
	return nil
}

type submissionRequest struct {
	Email          string        `json:"email" binding:"notblank"`
	FullName       flexString    `json:"fullName"`
	Name           flexString    `json:"name"`
	Phone          flexString    `json:"phone"`
	CountryCode    flexString    `json:"countryCode"`
	Status         flexString    `json:"status"`
	TestType       flexString    `json:"testType"`
	PlanName       flexString    `json:"planName"`
	Score          flexInt       `json:"score"`
	Discount       flexInt       `json:"discount"`
	CheatWarnings  flexInt       `json:"cheatWarnings"`
	TotalQuestions flexInt       `json:"totalQuestions"`
	TestResponses  testResponses `json:"testResponses"`
	Qualification  flexString    `json:"qualification"`
	CollegeName    flexString    `json:"collegeName"`
	City           flexString    `json:"city"`
	State          flexString    `json:"state"`
	Address        flexString    `json:"address"`
	Pincode        flexString    `json:"pincode"`
	FatherName     flexString    `json:"fatherName"`
	MotherName     flexString    `json:"motherName"`
	ParentPhone    flexString    `json:"parentPhone"`
}

func (r submissionRequest) toSubmission() services.Submission {
	name := string(r.FullName)
	if strings.TrimSpace(name) == "" {
		name = string(r.Name)
	}
	return services.Submission{
		Email:          r.Email,
		FullName:       name,
		Phone:          string(r.Phone),
		CountryCode:    string(r.CountryCode),
		Status:         string(r.Status),
		TestType:       string(r.TestType),
		PlanName:       string(r.PlanName),
		Score:          int(r.Score),
		Discount:       int(r.Discount),
		CheatWarnings:  int(r.CheatWarnings),
		TotalQuestions: int(r.TotalQuestions),
		TestResponses:  r.TestResponses,
		Qualification:  string(r.Qualification),
		CollegeName:    string(r.CollegeName),
		City:           string(r.City),
		State:          string(r.State),
		Address:        string(r.Address),
		Pincode:        string(r.Pincode),
		FatherName:     string(r.FatherName),
		MotherName:     string(r.MotherName),
		ParentPhone:    string(r.ParentPhone),
	}
}

type leadRequest struct {
	Email       string     `json:"email" binding:"notblank"`
	FullName    flexString `json:"fullName"`
	Name        flexString `json:"name"`
	Phone       flexString `json:"phone"`
	CountryCode flexString `json:"countryCode"`
	PlanName    flexString `json:"planName"`
	Score       flexInt    `json:"score"`
}

type alertRequest struct {
	StudentName string `json:"studentName"`
	Action      string `json:"action" binding:"notblank"`
}

// IntakeHandler serves the public endpoints the test client posts to.
type IntakeHandler struct {
	log         *zap.Logger
	submissions *services.SubmissionService
	notifier    *services.Notifier
}

func NewIntakeHandler(log *zap.Logger, submissions *services.SubmissionService, notifier *services.Notifier) *IntakeHandler {
	return &IntakeHandler{log: log, submissions: submissions, notifier: notifier}
}

// Submit records a final test result.
func (h *IntakeHandler) Submit(c *gin.Context) {
	var req submissionRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.submissions.Submit(c.Request.Context(), req.toSubmission())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      res.Message,
		"attendeeId":   res.Attendee.ID,
		"coupon":       res.Attendee.Coupon(),
		"breakdown":    res.Breakdown,
		"emailsSent":   res.EmailsSent,
		"emailsFailed": res.EmailsFailed,
	})
}

// Capture records the first scored capture of a lead.
func (h *IntakeHandler) Capture(c *gin.Context) {
	var req leadRequest
	if !bindJSON(c, &req) {
		return
	}
	name := string(req.FullName)
	if strings.TrimSpace(name) == "" {
		name = string(req.Name)
	}

	res, err := h.submissions.Capture(c.Request.Context(), services.Lead{
		Email:       req.Email,
		FullName:    name,
		Phone:       string(req.Phone),
		CountryCode: string(req.CountryCode),
		PlanName:    string(req.PlanName),
		Score:       int(req.Score),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         res.Message,
		"coupon":          res.Attendee.Coupon(),
		"discountPercent": res.Attendee.DiscountPercent,
	})
}

// Alert records a cheating attempt reported by the test client.
func (h *IntakeHandler) Alert(c *gin.Context) {
	var req alertRequest
	if !bindJSON(c, &req) {
		return
	}
	student := strings.TrimSpace(req.StudentName)
	if student == "" {
		student = "A student"
	}

	_, err := h.notifier.Notify(c.Request.Context(), "Cheating Attempt Detected",
		fmt.Sprintf("%s is attempting to %s during the test.", student, strings.TrimSpace(req.Action)),
		models.NotificationWarning)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
