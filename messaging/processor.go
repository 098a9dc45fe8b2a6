package messaging

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/handlers"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/internal/tracing"
)

// Command types accepted on the commands queue
const (
	GrantRole                  = "GrantRole"
	RegisterProduct            = "RegisterProduct"
	UpdateLocation             = "UpdateLocation"
	TransferCustody            = "TransferCustody"
	AddQualityCheck            = "AddQualityCheck"
	UpdateStatus               = "UpdateStatus"
	DeactivateProduct          = "DeactivateProduct"
	RegisterAuthority          = "RegisterAuthority"
	SetAuthorityActive         = "SetAuthorityActive"
	RegisterComplianceStandard = "RegisterComplianceStandard"
	IssueCertificate           = "IssueCertificate"
	BulkIssueCertificates      = "BulkIssueCertificates"
	ValidateCertificate        = "ValidateCertificate"
	RevokeCertificate          = "RevokeCertificate"
)

// AzureBusMessage is the common message structure
type AzureBusMessage struct {
	EventType string          `json:"eventType"`
	Actor     string          `json:"actor"`
	Data      json.RawMessage `json:"data"`
}

// target carries the path identifiers the HTTP API takes from the URL
type target struct {
	ProductID     string `json:"product_id"`
	CertificateID string `json:"certificate_id"`
	Principal     string `json:"principal"`
}

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error
}

type Processor struct {
	auth         *handlers.AuthorizationHandler
	products     *handlers.ProductHandler
	certificates *handlers.CertificateHandler
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
}

func NewProcessor(auth *handlers.AuthorizationHandler, products *handlers.ProductHandler, certificates *handlers.CertificateHandler, m *metrics.Metrics, tracer tracing.Tracer) *Processor {
	if tracer == nil {
		tracer = tracing.Noop()
	}
	return &Processor{
		auth:         auth,
		products:     products,
		certificates: certificates,
		metrics:      m,
		tracer:       tracer,
	}
}

// ProcessMessage handles one received message. Rejected commands are logged
// and settled; only infrastructure failures return an error so the message
// goes back to the queue.
func (p *Processor) ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	ctx, txn := p.tracer.StartTransaction(ctx, "servicebus/command")
	defer p.tracer.EndTransaction(txn)
	p.tracer.AddAttribute(txn, "messageID", message.MessageID)

	err := p.Dispatch(ctx, message.Body)
	if err == nil {
		p.metrics.IncrementCounter("messages_processed")
		return nil
	}

	p.tracer.RecordError(txn, err)
	if domain.IsDomainError(err) {
		p.metrics.IncrementCounter("messages_rejected")
		p.tracer.AddAttribute(txn, "code", string(domain.KindOf(err)))
		log.Warn().
			Err(err).
			Str("messageID", message.MessageID).
			Str("code", string(domain.KindOf(err))).
			Msg("Command rejected")
		return nil
	}

	p.metrics.IncrementCounter("messages_failed")
	return err
}

// Dispatch decodes a message body and runs the command it names
func (p *Processor) Dispatch(ctx context.Context, body []byte) error {
	var msg AzureBusMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return domain.Validation("malformed message: %v", err)
	}

	var ids target
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &ids); err != nil {
			return domain.Validation("malformed %s data: %v", msg.EventType, err)
		}
	}

	log.Debug().Str("eventType", msg.EventType).Str("actor", msg.Actor).Msg("Processing message")
	defer p.tracer.StartSpan(ctx, msg.EventType).End()

	switch msg.EventType {
	case GrantRole:
		var cmd handlers.GrantRoleCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor = msg.Actor
		return p.auth.HandleGrantRole(ctx, cmd)

	case RegisterProduct:
		var cmd handlers.RegisterProductCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor = msg.Actor
		_, err := p.products.HandleRegisterProduct(ctx, cmd)
		return err

	case UpdateLocation:
		var cmd handlers.UpdateLocationCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor, cmd.ProductID = msg.Actor, ids.ProductID
		_, err := p.products.HandleUpdateLocation(ctx, cmd)
		return err

	case TransferCustody:
		var cmd handlers.TransferCustodyCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor, cmd.ProductID = msg.Actor, ids.ProductID
		_, err := p.products.HandleTransferCustody(ctx, cmd)
		return err

	case AddQualityCheck:
		var cmd handlers.AddQualityCheckCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor, cmd.ProductID = msg.Actor, ids.ProductID
		_, err := p.products.HandleAddQualityCheck(ctx, cmd)
		return err

	case UpdateStatus:
		var cmd handlers.UpdateStatusCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor, cmd.ProductID = msg.Actor, ids.ProductID
		_, err := p.products.HandleUpdateStatus(ctx, cmd)
		return err

	case DeactivateProduct:
		return p.products.HandleDeactivateProduct(ctx, handlers.DeactivateProductCommand{
			Actor:     msg.Actor,
			ProductID: ids.ProductID,
		})

	case RegisterAuthority:
		var cmd handlers.RegisterAuthorityCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor = msg.Actor
		return p.certificates.HandleRegisterAuthority(ctx, cmd)

	case SetAuthorityActive:
		var cmd handlers.SetAuthorityActiveCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor, cmd.Principal = msg.Actor, ids.Principal
		return p.certificates.HandleSetAuthorityActive(ctx, cmd)

	case RegisterComplianceStandard:
		var cmd handlers.RegisterComplianceStandardCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor = msg.Actor
		return p.certificates.HandleRegisterComplianceStandard(ctx, cmd)

	case IssueCertificate:
		var cmd handlers.IssueCertificateCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor = msg.Actor
		_, err := p.certificates.HandleIssueCertificate(ctx, cmd)
		return err

	case BulkIssueCertificates:
		var batch struct {
			Certificates []handlers.IssueCertificateCommand `json:"certificates"`
		}
		if err := decode(msg, &batch); err != nil {
			return err
		}
		_, err := p.certificates.HandleBulkIssue(ctx, msg.Actor, batch.Certificates)
		return err

	case ValidateCertificate:
		var cmd handlers.ValidateCertificateCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor, cmd.CertificateID = msg.Actor, ids.CertificateID
		_, err := p.certificates.HandleValidateCertificate(ctx, cmd)
		return err

	case RevokeCertificate:
		var cmd handlers.RevokeCertificateCommand
		if err := decode(msg, &cmd); err != nil {
			return err
		}
		cmd.Actor, cmd.CertificateID = msg.Actor, ids.CertificateID
		return p.certificates.HandleRevokeCertificate(ctx, cmd)

	default:
		return domain.Validation("unsupported event type %q", msg.EventType)
	}
}

func decode(msg AzureBusMessage, dest interface{}) error {
	if len(msg.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Data, dest); err != nil {
		return domain.Validation("malformed %s data: %v", msg.EventType, err)
	}
	return nil
}
