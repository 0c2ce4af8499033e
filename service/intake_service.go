package service

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"jansunwai/metrics"
	"jansunwai/models"
	"jansunwai/utils"
)

// minIssueLength is the minimum description length accepted as an issue.
const minIssueLength = 10

// civicKeywords gate the issue-description phase: a message must mention a
// recognizable civic problem before it is accepted as a complaint.
var civicKeywords = []string{
	"pothole", "road", "street light", "streetlight", "water", "drainage",
	"drain", "sewage", "sewer", "garbage", "trash", "waste", "dump",
	"electricity", "power", "transformer", "wire", "footpath", "pavement",
	"encroachment", "stray", "mosquito", "park", "tree", "signal",
	"manhole", "leak", "pipeline", "toilet", "sanitation", "dustbin",
}

// vagueLocations are rejected with a guided re-prompt; a complaint needs a
// location a field worker can find.
var vagueLocations = []string{
	"here", "there", "near me", "near my house", "near my home", "my area",
	"my street", "my colony", "home", "outside", "nearby", "close by",
	"in the city", "everywhere", "somewhere",
}

// injectionPatterns detect prompt-injection attempts. On a hit the reply is a
// fixed deflection and the phase never advances.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+instructions`),
	regexp.MustCompile(`(?i)\bact\s+as\b`),
	regexp.MustCompile(`(?i)\bpretend\s+(to\s+be|you\s+are)\b`),
	regexp.MustCompile(`(?i)system\s+prompt`),
	regexp.MustCompile(`(?i)you\s+are\s+now\b`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)reveal\s+your\s+(instructions|prompt|rules)`),
}

// IntakeService is the conversational collector. The service, not the
// language model, owns every phase transition; messages pass deterministic
// validators before a phase may advance.
type IntakeService struct {
	sessions  SessionStore
	lifecycle *LifecycleService
	clock     utils.Clock

	sessionTTL time.Duration
	rateLimit  int
	rateWindow time.Duration
}

// NewIntakeService wires the intake state machine.
func NewIntakeService(sessions SessionStore, lifecycle *LifecycleService, clock utils.Clock, sessionTTL time.Duration, rateLimitPerMinute int) *IntakeService {
	return &IntakeService{
		sessions:   sessions,
		lifecycle:  lifecycle,
		clock:      clock,
		sessionTTL: sessionTTL,
		rateLimit:  rateLimitPerMinute,
		rateWindow: time.Minute,
	}
}

// HandleMessage processes one inbound channel message and returns the reply.
// The session is loaded, advanced by the deterministic phase machine, and
// saved back with its TTL. A committed or cancelled conversation destroys the
// session.
func (s *IntakeService) HandleMessage(ctx context.Context, msg *models.IntakeMessage) (*models.IntakeReply, error) {
	if err := msg.Validate(); err != nil {
		metrics.IntakeMessages.WithLabelValues("rejected").Inc()
		return nil, err
	}

	ok, err := s.sessions.AllowMessage(ctx, msg.Channel, msg.Address, s.rateLimit, s.rateWindow)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.IntakeMessages.WithLabelValues("rate_limited").Inc()
		// Saturation reply; phase untouched.
		return nil, models.E(models.KindRateLimited, "please wait a moment before sending more messages")
	}

	now := s.clock.Now()
	session, err := s.sessions.Get(ctx, msg.Channel, msg.Address)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = s.newSession(msg, now)
	}
	if msg.CitizenID > 0 {
		session.CitizenID = msg.CitizenID
	}

	text := strings.TrimSpace(msg.Text)
	session.AppendHistory(true, text, now)

	reply := s.advance(ctx, session, text, msg.ImageHandle, now)

	session.AppendHistory(false, reply.Text, now)
	session.LastActivity = now
	session.ExpiresAt = now.Add(s.sessionTTL)
	reply.Phase = string(session.Phase)

	if reply.ComplaintNumber != "" || session.Phase == "" {
		// Commit or cancel destroys the session.
		if err := s.sessions.Delete(ctx, msg.Channel, msg.Address); err != nil {
			log.Printf("[INTAKE] Failed to delete session %s/%s: %v", msg.Channel, msg.Address, err)
		}
	} else {
		if err := s.sessions.Save(ctx, session, s.sessionTTL); err != nil {
			return nil, err
		}
	}

	metrics.IntakeMessages.WithLabelValues("handled").Inc()
	return reply, nil
}

func (s *IntakeService) newSession(msg *models.IntakeMessage, now time.Time) *models.ConversationSession {
	phase := models.PhaseGreeting
	if msg.CitizenID > 0 {
		phase = models.PhaseRegisteredIdle
	}
	return &models.ConversationSession{
		Channel:      msg.Channel,
		Address:      msg.Address,
		CitizenID:    msg.CitizenID,
		Phase:        phase,
		LastActivity: now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
}

// advance runs one step of the phase machine. It mutates the session and
// returns the reply; setting session.Phase to "" marks the session for
// destruction (cancel).
func (s *IntakeService) advance(ctx context.Context, session *models.ConversationSession, text string, imageHandle *string, now time.Time) *models.IntakeReply {
	if isInjection(text) {
		log.Printf("[INTAKE] Injection attempt on %s/%s rejected", session.Channel, session.Address)
		return &models.IntakeReply{Text: "I can only help with municipal complaints. Please describe a civic issue, like a pothole or a water problem."}
	}

	lower := strings.ToLower(text)
	if lower == "cancel" || lower == "reset" || lower == "stop" {
		session.Phase = ""
		return &models.IntakeReply{Text: "Okay, I've discarded this conversation. Message me any time to file a new complaint."}
	}

	switch session.Phase {
	case models.PhaseGreeting:
		return s.handleGreeting(session, text)
	case models.PhaseAwaitingRegistration:
		return s.handleRegistration(session, text)
	case models.PhaseRegisteredIdle:
		return s.handleIdle(ctx, session, text)
	case models.PhaseAwaitingIssue:
		return s.handleIssue(session, text)
	case models.PhaseAwaitingLocation:
		return s.handleLocation(session, text)
	case models.PhaseAwaitingImage:
		return s.handleImage(session, text, imageHandle)
	case models.PhaseReadyToFile:
		return s.handleConfirmation(ctx, session, text, now)
	case models.PhaseViewingComplaints:
		session.Phase = models.PhaseRegisteredIdle
		return s.handleIdle(ctx, session, text)
	default:
		session.Phase = models.PhaseRegisteredIdle
		return &models.IntakeReply{Text: "How can I help? Describe a civic issue to file a complaint, or say \"status\" to see your complaints."}
	}
}

func (s *IntakeService) handleGreeting(session *models.ConversationSession, text string) *models.IntakeReply {
	// A citizen who leads with a real issue should not be bounced through a
	// menu first.
	if containsCivicKeyword(text) && len(text) >= minIssueLength {
		return s.acceptIssue(session, text)
	}
	if session.CitizenID > 0 {
		session.Phase = models.PhaseRegisteredIdle
		return &models.IntakeReply{Text: "Welcome back! Describe a civic issue to file a complaint, or say \"status\" to see your complaints."}
	}
	session.Phase = models.PhaseAwaitingRegistration
	return &models.IntakeReply{Text: "Namaste! I'm the municipal grievance assistant. Before we start, what's your name?"}
}

func (s *IntakeService) handleRegistration(session *models.ConversationSession, text string) *models.IntakeReply {
	name := strings.TrimSpace(text)
	if len(name) < 2 || len(name) > 100 || containsCivicKeyword(name) {
		return &models.IntakeReply{Text: "Please tell me your name so I can register this conversation."}
	}
	session.CitizenName = name
	session.Phase = models.PhaseRegisteredIdle
	return &models.IntakeReply{Text: fmt.Sprintf("Thanks, %s! Describe a civic issue to file a complaint, or say \"status\" to see your complaints.", name)}
}

func (s *IntakeService) handleIdle(ctx context.Context, session *models.ConversationSession, text string) *models.IntakeReply {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "status") || strings.Contains(lower, "my complaint") {
		return s.showComplaints(ctx, session)
	}
	if containsCivicKeyword(text) && len(text) >= minIssueLength {
		return s.acceptIssue(session, text)
	}
	if strings.Contains(lower, "complaint") || strings.Contains(lower, "problem") || strings.Contains(lower, "issue") || lower == "new" {
		session.Phase = models.PhaseAwaitingIssue
		return &models.IntakeReply{Text: "Please describe the issue: what's wrong and what kind of problem is it (road, water, garbage, streetlight...)?"}
	}
	return &models.IntakeReply{Text: "I can file municipal complaints for you. Describe the issue (for example: \"huge pothole on the main road\"), or say \"status\" to see your complaints."}
}

func (s *IntakeService) handleIssue(session *models.ConversationSession, text string) *models.IntakeReply {
	if len(text) < minIssueLength {
		return &models.IntakeReply{Text: "Could you describe the issue in a bit more detail? A sentence or two helps us route it to the right department."}
	}
	if !containsCivicKeyword(text) {
		return &models.IntakeReply{Text: "I handle municipal issues like roads, water, drainage, garbage, and streetlights. What kind of civic problem are you reporting?"}
	}
	return s.acceptIssue(session, text)
}

// acceptIssue records the description and moves to location collection.
func (s *IntakeService) acceptIssue(session *models.ConversationSession, text string) *models.IntakeReply {
	session.Draft.Description = text
	session.Draft.Title = deriveTitle(text)
	session.Phase = models.PhaseAwaitingLocation
	return &models.IntakeReply{Text: "Got it. Where exactly is this? Please give a street name and a landmark, like \"MG Road, opposite SBI bank\"."}
}

func (s *IntakeService) handleLocation(session *models.ConversationSession, text string) *models.IntakeReply {
	if isVagueLocation(text) {
		return &models.IntakeReply{Text: "I need a location a field team can find. Please include a street or area name plus a landmark, like \"MG Road, opposite SBI bank\" or \"Ward 12, near the government school\"."}
	}
	session.Draft.Location = strings.TrimSpace(text)
	session.Phase = models.PhaseAwaitingImage
	if session.ImagePromptSent {
		return s.summarize(session)
	}
	session.ImagePromptSent = true
	return &models.IntakeReply{Text: "Thanks. If you have a photo of the problem, send it now — it helps prioritization. Otherwise say \"skip\"."}
}

func (s *IntakeService) handleImage(session *models.ConversationSession, text string, imageHandle *string) *models.IntakeReply {
	lower := strings.ToLower(strings.TrimSpace(text))
	if imageHandle != nil && *imageHandle != "" {
		session.Draft.ImageHandle = *imageHandle
		return s.summarize(session)
	}
	if lower == "skip" || lower == "no" || lower == "no photo" || lower == "none" {
		return s.summarize(session)
	}
	return &models.IntakeReply{Text: "Send a photo of the problem, or say \"skip\" to continue without one."}
}

// summarize moves to READY_TO_FILE and plays the draft back for confirmation.
// The phase invariant is re-checked here rather than assumed.
func (s *IntakeService) summarize(session *models.ConversationSession) *models.IntakeReply {
	if !session.ReadyToFile() {
		session.Phase = models.PhaseAwaitingIssue
		return &models.IntakeReply{Text: "Let's start over: please describe the issue."}
	}
	session.Phase = models.PhaseReadyToFile
	withPhoto := "no photo"
	if session.Draft.ImageHandle != "" {
		withPhoto = "photo attached"
	}
	return &models.IntakeReply{Text: fmt.Sprintf(
		"Here's what I'll file:\nIssue: %s\nLocation: %s (%s)\nShall I submit this complaint? (yes/no)",
		session.Draft.Description, session.Draft.Location, withPhoto)}
}

func (s *IntakeService) handleConfirmation(ctx context.Context, session *models.ConversationSession, text string, now time.Time) *models.IntakeReply {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch lower {
	case "yes", "y", "ok", "confirm", "submit", "haan":
		return s.commit(ctx, session)
	case "no", "n", "discard":
		session.Draft = models.ComplaintDraft{}
		session.ImagePromptSent = false
		session.Phase = models.PhaseAwaitingIssue
		return &models.IntakeReply{Text: "Discarded. Please describe the issue again from the start."}
	default:
		return &models.IntakeReply{Text: "Please reply \"yes\" to submit the complaint or \"no\" to discard it."}
	}
}

// commit hands the validated draft to the lifecycle engine and echoes the
// display number back. The caller destroys the session on success.
func (s *IntakeService) commit(ctx context.Context, session *models.ConversationSession) *models.IntakeReply {
	if session.CitizenID <= 0 {
		return &models.IntakeReply{Text: "I couldn't verify your citizen account on this channel, so I can't file the complaint. Please use the app or portal, or contact the helpline."}
	}

	req := &models.CreateComplaintRequest{
		Title:       session.Draft.Title,
		Description: session.Draft.Description,
		Location:    session.Draft.Location,
		Latitude:    session.Draft.Latitude,
		Longitude:   session.Draft.Longitude,
	}
	if session.Draft.ImageHandle != "" {
		req.ImageHandle = &session.Draft.ImageHandle
	}

	c, err := s.lifecycle.CreateComplaint(ctx, session.CitizenID, req, "intake")
	if err != nil {
		log.Printf("[INTAKE] Failed to file complaint for citizen %d: %v", session.CitizenID, err)
		return &models.IntakeReply{Text: "Something went wrong while filing your complaint. Please try again in a moment."}
	}

	session.Phase = models.PhaseRegisteredIdle
	return &models.IntakeReply{
		Text:            fmt.Sprintf("Done! Your complaint is filed as %s. You can say \"status\" any time to track it.", c.ComplaintNumber),
		ComplaintNumber: c.ComplaintNumber,
	}
}

func (s *IntakeService) showComplaints(ctx context.Context, session *models.ConversationSession) *models.IntakeReply {
	if session.CitizenID <= 0 {
		return &models.IntakeReply{Text: "I couldn't verify your citizen account on this channel, so I can't look up complaints here."}
	}
	session.Phase = models.PhaseViewingComplaints

	complaints, err := s.lifecycle.complaints.ListByCitizen(ctx, session.CitizenID)
	if err != nil {
		log.Printf("[INTAKE] Failed to list complaints for citizen %d: %v", session.CitizenID, err)
		return &models.IntakeReply{Text: "I couldn't fetch your complaints right now. Please try again in a moment."}
	}
	if len(complaints) == 0 {
		session.Phase = models.PhaseRegisteredIdle
		return &models.IntakeReply{Text: "You have no complaints on record. Describe a civic issue to file one."}
	}

	var sb strings.Builder
	sb.WriteString("Your complaints:\n")
	shown := 0
	for _, c := range complaints {
		if shown == 5 {
			break
		}
		fmt.Fprintf(&sb, "%s — %s (%s)\n", c.ComplaintNumber, c.Title, c.CurrentState)
		shown++
	}
	sb.WriteString("Describe a new issue any time to file another complaint.")
	return &models.IntakeReply{Text: sb.String()}
}

func containsCivicKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range civicKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isVagueLocation(text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if len(trimmed) < 5 {
		return true
	}
	for _, vague := range vagueLocations {
		if trimmed == vague {
			return true
		}
	}
	// "near my house on the left" and friends: vague phrase with no street.
	for _, vague := range vagueLocations {
		if len(vague) > 5 && strings.Contains(trimmed, vague) {
			return true
		}
	}
	return false
}

func isInjection(text string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// deriveTitle clips the description into a list-friendly title.
func deriveTitle(description string) string {
	t := strings.TrimSpace(description)
	if idx := strings.IndexAny(t, ".\n"); idx > 10 {
		t = t[:idx]
	}
	if len(t) > 80 {
		t = t[:77] + "..."
	}
	return t
}
