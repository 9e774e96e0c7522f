package services

import (
	"fmt"
	"strings"

	"admissions-go/internal/models"

	"github.com/pkg/errors"
)

// Channel is an outbound nurture medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelCall     Channel = "call"
)

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelEmail, ChannelWhatsApp, ChannelCall:
		return c, nil
	}
	return "", errors.Wrapf(ErrValidation, "unknown channel %q", s)
}

// statusKind groups attendee statuses that share nurture copy.
type statusKind string

const (
	kindQualified    statusKind = "qualified"
	kindDisqualified statusKind = "disqualified"
	kindCandidate    statusKind = "candidate"
)

func kindOf(a *models.Attendee) statusKind {
	switch {
	case a.Status == models.StatusDisqualified:
		return kindDisqualified
	case a.TestType == models.TestTypeAptitude:
		return kindCandidate
	default:
		return kindQualified
	}
}

type draftKey struct {
	kind    statusKind
	channel Channel
}

// draftTemplate pairs an LLM prompt with the text used when the LLM is
// unavailable. Both receive the attendee and the brand name.
type draftTemplate struct {
	subject  func(a *models.Attendee) string
	prompt   func(a *models.Attendee, brand string) string
	fallback func(a *models.Attendee, brand string) string
}

const assistantPreamble = "You are Manee, the admissions assistant for %s. "

var draftTable = map[draftKey]draftTemplate{
	{kindQualified, ChannelEmail}: {
		subject: func(a *models.Attendee) string {
			return fmt.Sprintf("Exclusive: Your %d%% Scholarship expires soon!", a.DiscountPercent)
		},
		prompt: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf(assistantPreamble+
				"Student: %s, Score: %d/%d, Discount: %d%%, Plan: %s, Coupon: %s. "+
				"Write a warm, high-conversion email under 150 words urging them to register. Return ONLY the email body.",
				brand, a.FullName, a.Score, a.TotalQuestions, a.DiscountPercent, a.PlanName, a.Coupon())
		},
		fallback: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Hi %s,\n\nYour %d%% scholarship on the %s plan at %s is reserved under coupon %s. "+
				"Scholarship seats are limited and allotted in order of registration, so please complete your registration soon.\n\n"+
				"Reply to this email if you have any questions.\n\n%s Admissions",
				a.FirstName(), a.DiscountPercent, a.PlanName, brand, a.Coupon(), brand)
		},
	},
	{kindQualified, ChannelWhatsApp}: {
		prompt: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Create a short, urgent WhatsApp message for %s. They scored %d and got a %d%% scholarship at %s. "+
				"Include a call to action. Under 40 words. No subject line.", a.FullName, a.Score, a.DiscountPercent, brand)
		},
		fallback: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Hi %s! Your %d%% scholarship at %s is waiting. Use coupon %s and register today before seats fill up.",
				a.FirstName(), a.DiscountPercent, brand, a.Coupon())
		},
	},
	{kindQualified, ChannelCall}: {
		prompt: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf(assistantPreamble+"Write a 30-second phone call script calling student %s who scored %d. "+
				"Pitch the %d%% scholarship and ask them to register before the slot fills up. Keep the tone natural and helpful.",
				brand, a.FullName, a.Score, a.DiscountPercent)
		},
		fallback: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Hello %s, this is Manee from %s. Congratulations on your scholarship test. "+
				"You have earned a %d%% scholarship on the %s plan. Seats are limited, so we would love to help you register today. "+
				"Shall I connect you with an admissions counsellor?", a.FirstName(), brand, a.DiscountPercent, a.PlanName)
		},
	},
	{kindDisqualified, ChannelEmail}: {
		subject: func(a *models.Attendee) string { return "About your scholarship test" },
		prompt: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf(assistantPreamble+"Student %s was disqualified from the scholarship test after %d integrity warnings. "+
				"Write a polite, firm email under 120 words explaining the result and inviting them to the regular admission process. Return ONLY the email body.",
				brand, a.FullName, a.CheatWarnings)
		},
		fallback: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Hi %s,\n\nYour scholarship test was closed after our proctoring system recorded integrity warnings, so it is not eligible for a scholarship. "+
				"You can still join %s through the regular admission process and our team is happy to guide you.\n\n%s Admissions",
				a.FirstName(), brand, brand)
		},
	},
	{kindDisqualified, ChannelWhatsApp}: {
		prompt: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Write a polite WhatsApp message under 40 words for %s, whose %s scholarship test was closed for integrity warnings, "+
				"inviting them to talk to admissions about regular enrolment.", a.FullName, brand)
		},
		fallback: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Hi %s, your %s scholarship test could not be evaluated. Our admissions team can still help you enrol. Reply to this message to talk to us.",
				a.FirstName(), brand)
		},
	},
	{kindDisqualified, ChannelCall}: {
		prompt: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf(assistantPreamble+"Write a 30-second courteous call script for %s, whose scholarship test was closed for integrity warnings. "+
				"Offer help with the regular admission process.", brand, a.FullName)
		},
		fallback: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Hello %s, this is Manee from %s. Your scholarship test could not be evaluated, but you can still join through our regular admission process. "+
				"Would you like a counsellor to walk you through it?", a.FirstName(), brand)
		},
	},
	{kindCandidate, ChannelEmail}: {
		subject: func(a *models.Attendee) string { return "Next steps after your aptitude assessment" },
		prompt: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf(assistantPreamble+"Candidate %s (%s, %s) scored %d/%d on the hiring aptitude test. "+
				"Write a professional email under 120 words inviting them to schedule an interview. Return ONLY the email body.",
				brand, a.FullName, a.Qualification, a.CollegeName, a.Score, a.TotalQuestions)
		},
		fallback: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Hi %s,\n\nThank you for completing the %s aptitude assessment. We would like to schedule a short interview with you. "+
				"Please reply with two time slots that suit you this week.\n\n%s Hiring", a.FirstName(), brand, brand)
		},
	},
	{kindCandidate, ChannelWhatsApp}: {
		prompt: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Write a friendly WhatsApp message under 40 words inviting candidate %s to schedule an interview with %s after the aptitude test.",
				a.FullName, brand)
		},
		fallback: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Hi %s, thanks for taking the %s aptitude test! We'd like to set up a quick interview. Which time works for you this week?",
				a.FirstName(), brand)
		},
	},
	{kindCandidate, ChannelCall}: {
		prompt: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf(assistantPreamble+"Write a 30-second call script for candidate %s who scored %d on the aptitude test, "+
				"asking for a convenient interview slot.", brand, a.FullName, a.Score)
		},
		fallback: func(a *models.Attendee, brand string) string {
			return fmt.Sprintf("Hello %s, this is Manee from %s. Thank you for completing our aptitude assessment. "+
				"We would like to invite you for an interview. Which day this week suits you best?", a.FirstName(), brand)
		},
	},
}

// draftFor looks up the template for an attendee and channel. Every
// (kind, channel) pair is present in draftTable.
func draftFor(a *models.Attendee, ch Channel) draftTemplate {
	return draftTable[draftKey{kindOf(a), ch}]
}
