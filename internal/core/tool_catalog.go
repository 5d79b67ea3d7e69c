package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"gwi.com/agenda/internal/horoscope"
	"gwi.com/agenda/internal/mail"
	"gwi.com/agenda/internal/store"
	"gwi.com/agenda/internal/tools"
)

const (
	ToolQueryContacts = "query_contacts"
	ToolUpdateContact = "update_contact"
	ToolSendEmail     = "send_email"
	ToolGetHoroscope  = "get_horoscope"
)

// HoroscopeSource returns a reading or an in-band {"error": ...} value.
type HoroscopeSource interface {
	Get(ctx context.Context, timeframe, sign, day string) any
}

// NewToolRegistry registers the operations the model may call, in the order
// they are offered to it.
func NewToolRegistry(contacts *ContactService, queries *QueryService, horoscopes HoroscopeSource, mailer mail.Sender) *tools.Registry {
	r := tools.NewRegistry()
	r.MustRegister(queryContactsTool(queries))
	r.MustRegister(updateContactTool(contacts))
	r.MustRegister(sendEmailTool(mailer))
	r.MustRegister(getHoroscopeTool(horoscopes))
	return r
}

func queryContactsTool(queries *QueryService) tools.Tool {
	type args struct {
		Expression string `json:"expression"`
	}
	return tools.Tool{
		Definition: tools.Definition{
			Name:        ToolQueryContacts,
			Description: "Reads contacts by evaluating a JMESPath expression against the array of all contacts. Useful to filter, search or sort.",
			Parameters: tools.Object("", map[string]*tools.Schema{
				"expression": tools.String("The JMESPath expression to evaluate."),
			}, "expression"),
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := tools.DecodeArgs(raw, &a); err != nil {
				return nil, err
			}
			zerolog.Ctx(ctx).Debug().Str("expression", a.Expression).Msg("Running contact query")
			return queries.Query(ctx, a.Expression)
		},
	}
}

func updateContactTool(contacts *ContactService) tools.Tool {
	type args struct {
		ContactID json.RawMessage `json:"contact_id"`
		NewFields map[string]any  `json:"new_fields"`
	}
	fieldDocs := map[string]string{
		store.FieldName:      "Full name of the contact.",
		store.FieldPhone:     "Phone number.",
		store.FieldEmail:     "Email address.",
		store.FieldAddress:   "Street address.",
		store.FieldCity:      "City of residence.",
		store.FieldCountry:   "Country of residence.",
		store.FieldBirthDate: "Birth date in YYYY-MM-DD format.",
	}
	newFields := make(map[string]*tools.Schema, len(store.MutableFields))
	for _, f := range store.MutableFields {
		newFields[f] = tools.String(fieldDocs[f])
	}

	return tools.Tool{
		Definition: tools.Definition{
			Name:        ToolUpdateContact,
			Description: "Updates an existing contact by id, merging the given fields into it. Returns true on success and false when the contact does not exist or the result is invalid.",
			Parameters: tools.Object("", map[string]*tools.Schema{
				"contact_id": tools.Integer("Numeric id of the contact to edit."),
				"new_fields": tools.Object("Fields to change on the contact.", newFields),
			}, "contact_id", "new_fields"),
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			log := zerolog.Ctx(ctx)
			var a args
			if err := tools.DecodeArgs(raw, &a); err != nil {
				return nil, err
			}
			id, err := parseContactID(a.ContactID)
			if err != nil {
				log.Warn().Err(err).Msg("update_contact called with a bad id")
				return false, nil
			}

			_, err = contacts.Merge(ctx, id, a.NewFields)
			var notFound *store.NotFoundError
			var invalid *store.ValidationError
			switch {
			case errors.As(err, &notFound):
				log.Warn().Int64("contact_id", id).Msg("No contact to update")
				return false, nil
			case errors.As(err, &invalid):
				log.Warn().Int64("contact_id", id).Err(err).Msg("Rejected contact update")
				return false, nil
			case err != nil:
				return nil, err
			}
			return true, nil
		},
	}
}

// parseContactID accepts a JSON integer or a string holding one.
func parseContactID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("contact_id is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = []byte(s)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		var f float64
		if json.Unmarshal(raw, &f) == nil && f == float64(int64(f)) {
			return int64(f), nil
		}
		return 0, fmt.Errorf("contact_id %s is not an integer", raw)
	}
	return id, nil
}

func sendEmailTool(mailer mail.Sender) tools.Tool {
	type args struct {
		Recipient string `json:"recipient"`
		Subject   string `json:"subject"`
		Body      string `json:"body"`
	}
	return tools.Tool{
		Definition: tools.Definition{
			Name:        ToolSendEmail,
			Description: "Sends an email to a recipient with the given subject and body.",
			Parameters: tools.Object("", map[string]*tools.Schema{
				"recipient": tools.String("Email address of the recipient."),
				"subject":   tools.String("Subject line."),
				"body":      tools.String("Message body."),
			}, "recipient", "subject", "body"),
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := tools.DecodeArgs(raw, &a); err != nil {
				return nil, err
			}
			err := mailer.Send(ctx, mail.Email{Recipient: a.Recipient, Subject: a.Subject, Body: a.Body})
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Str("recipient", a.Recipient).Msg("Email delivery failed")
				return map[string]any{"sent": false, "error": err.Error()}, nil
			}
			return map[string]any{"sent": true}, nil
		},
	}
}

func getHoroscopeTool(source HoroscopeSource) tools.Tool {
	type args struct {
		Timeframe string `json:"timeframe"`
		Sign      string `json:"sign"`
		Day       string `json:"day"`
	}
	return tools.Tool{
		Definition: tools.Definition{
			Name:        ToolGetHoroscope,
			Description: "Gets the horoscope for a zodiac sign from an external API.",
			Parameters: tools.Object("", map[string]*tools.Schema{
				"timeframe": tools.Enum("Period the horoscope covers.", horoscope.Timeframes...),
				"sign":      tools.String("Zodiac sign in English, for example aries, libra or scorpio."),
				"day":       tools.String("Daily only. TODAY, TOMORROW, YESTERDAY or a YYYY-MM-DD date. Defaults to TODAY."),
			}, "timeframe", "sign"),
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := tools.DecodeArgs(raw, &a); err != nil {
				return nil, err
			}
			return source.Get(ctx, a.Timeframe, a.Sign, a.Day), nil
		},
	}
}
