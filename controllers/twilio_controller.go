package controller

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"runwayiq/calling"
	"runwayiq/integrations/twilio"
	"runwayiq/models"
	"runwayiq/utils"
)

const analysisTimeout = 60 * time.Second

// TwilioController answers Twilio's voice webhooks. Voice and gather always
// reply with TwiML so a caller never hears an application error.
type TwilioController struct {
	Service *calling.Service
	Logger  *logrus.Entry

	analyze func(ctx context.Context, callID uint) error
	wg      sync.WaitGroup
}

func NewTwilioController(svc *calling.Service, logger *logrus.Entry) *TwilioController {
	return &TwilioController{
		Service: svc,
		Logger:  logger,
		analyze: svc.AnalyzeCall,
	}
}

func sendTwiML(c *fiber.Ctx, xml string) error {
	c.Set(fiber.HeaderContentType, "text/xml")
	return c.SendString(xml)
}

// Voice is requested once the lead picks up
func (tc *TwilioController) Voice(c *fiber.Ctx) error {
	callID, err := utils.ParamID(c, "callId")
	if err != nil {
		return sendTwiML(c, twilio.ApologyTwiML())
	}

	xml, err := tc.Service.VoiceTwiML(c.UserContext(), callID)
	if err != nil {
		utils.LogError("twilio_voice", err, map[string]interface{}{"call_id": callID})
		return sendTwiML(c, twilio.ApologyTwiML())
	}
	return sendTwiML(c, xml)
}

// Gather receives the lead's speech and replies with the agent's next line
func (tc *TwilioController) Gather(c *fiber.Ctx) error {
	callID, err := utils.ParamID(c, "callId")
	if err != nil {
		return sendTwiML(c, twilio.ApologyTwiML())
	}

	speech := c.FormValue("SpeechResult")
	confidence, _ := strconv.ParseFloat(c.FormValue("Confidence"), 64)

	xml, err := tc.Service.HandleSpeech(c.UserContext(), callID, speech, confidence)
	if err != nil {
		utils.LogError("twilio_gather", err, map[string]interface{}{"call_id": callID})
		return sendTwiML(c, twilio.ApologyTwiML())
	}
	return sendTwiML(c, xml)
}

// Status applies a call status callback and analyzes completed calls in the background
func (tc *TwilioController) Status(c *fiber.Ctx) error {
	update := calling.StatusUpdate{
		CallSID:      c.FormValue("CallSid"),
		CallStatus:   c.FormValue("CallStatus"),
		Duration:     c.FormValue("CallDuration"),
		RecordingURL: c.FormValue("RecordingUrl"),
	}
	if update.CallSID == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "CallSid is required", nil)
	}
	if _, err := models.ParseTwilioCallStatus(update.CallStatus); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown call status", err)
	}

	call, err := tc.Service.HandleStatus(c.UserContext(), update)
	if err != nil {
		utils.LogError("twilio_status", err, map[string]interface{}{"call_sid": update.CallSID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update call status", nil)
	}

	if call != nil && call.Status == models.CallStatusCompleted {
		tc.analyzeLater(call.ID)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (tc *TwilioController) analyzeLater(callID uint) {
	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
		defer cancel()
		if err := tc.analyze(ctx, callID); err != nil {
			tc.Logger.WithError(err).WithField("call_id", callID).Warn("Call analysis failed")
		}
	}()
}

// Wait blocks until background call analyses have finished
func (tc *TwilioController) Wait() {
	tc.wg.Wait()
}
