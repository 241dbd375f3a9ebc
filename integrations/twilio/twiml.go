package twilio

import (
	"github.com/twilio/twilio-go/twiml"
)

const voice = "alice"

const (
	greeting       = "Hello! This is an AI assistant calling on behalf of our company. How are you doing today?"
	openingPrompt  = "I'd love to learn more about your business needs. Could you tell me a bit about what you're currently working on?"
	noInputGoodbye = "I didn't catch that. Let me try calling you again later. Have a great day!"
	followUpPrompt = "Is there anything else I can help you with today?"
	closingGoodbye = "Thank you for your time. We'll follow up with you soon. Have a great day!"
	apology        = "I'm sorry, we're experiencing technical difficulties. We'll call you back soon."
	farewell       = "Thank you for your time. We'll be in touch soon. Goodbye!"

	apologyFallback = `<?xml version="1.0" encoding="UTF-8"?><Response><Say voice="alice">` + apology + `</Say><Hangup/></Response>`
)

// DidNotCatch is spoken when speech recognition produced nothing usable
const DidNotCatch = "I'm sorry, I didn't catch that. Could you repeat that?"

func say(msg string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: msg, Voice: voice}
}

func gather(action, prompt string) *twiml.VoiceGather {
	return &twiml.VoiceGather{
		Input:         "speech",
		Timeout:       "10",
		SpeechTimeout: "3",
		Action:        action,
		Method:        "POST",
		InnerElements: []twiml.Element{say(prompt)},
	}
}

// GreetingTwiML opens the conversation and listens for the first answer
func GreetingTwiML(gatherURL string) (string, error) {
	return twiml.Voice([]twiml.Element{
		say(greeting),
		gather(gatherURL, openingPrompt),
		say(noInputGoodbye),
		&twiml.VoiceHangup{},
	})
}

// ReplyTwiML speaks the assistant's reply and keeps the gather loop going
func ReplyTwiML(reply, gatherURL string) (string, error) {
	return twiml.Voice([]twiml.Element{
		say(reply),
		gather(gatherURL, followUpPrompt),
		say(closingGoodbye),
		&twiml.VoiceHangup{},
	})
}

// ApologyTwiML ends the call politely when the voice webhook fails
func ApologyTwiML() string {
	return hangupWith(apology)
}

// FarewellTwiML ends the call politely when the gather webhook fails
func FarewellTwiML() string {
	return hangupWith(farewell)
}

func hangupWith(msg string) string {
	out, err := twiml.Voice([]twiml.Element{say(msg), &twiml.VoiceHangup{}})
	if err != nil {
		return apologyFallback
	}
	return out
}
