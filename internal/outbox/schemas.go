package outbox

const dealCreatedSchema = `{
  "type": "object",
  "title": "DealCreated",
  "properties": {
    "deal_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "title": {"type": "string"},
    "value": {"type": "number"},
    "stage": {"type": "string", "enum": ["discovery", "proposal", "won", "lost"]},
    "channel": {"type": "string"},
    "assigned_to": {"type": "string"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["deal_id", "tenant_id", "title", "stage", "created_at"]
}`

const dealStageChangedSchema = `{
  "type": "object",
  "title": "DealStageChanged",
  "properties": {
    "deal_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "stage": {"type": "string", "enum": ["discovery", "proposal", "won", "lost"]},
    "value": {"type": "number"},
    "channel": {"type": "string"},
    "closed_date": {"type": "string", "format": "date-time"},
    "lost_date": {"type": "string", "format": "date-time"},
    "loss_reason": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["deal_id", "tenant_id", "stage", "occurred_at"]
}`

const activityLoggedSchema = `{
  "type": "object",
  "title": "ActivityLogged",
  "properties": {
    "task_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "title": {"type": "string"},
    "type": {"type": "string"},
    "status": {"type": "string", "enum": ["pending", "in_progress", "completed"]},
    "priority": {"type": "string", "enum": ["low", "medium", "high"]},
    "deal_id": {"type": "string"},
    "assigned_to": {"type": "string"},
    "due": {"type": "string", "format": "date-time"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["task_id", "tenant_id", "title", "type", "status", "created_at"]
}`

// SchemaMetadata associates an event type with its registered JSON schema.
type SchemaMetadata struct {
	Schema string
}

var schemaCatalog = map[string]SchemaMetadata{
	"deal.created":       {Schema: dealCreatedSchema},
	"deal.stage_changed": {Schema: dealStageChangedSchema},
	"activity.logged":    {Schema: activityLoggedSchema},
}
