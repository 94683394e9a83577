package domain

type NodeType string

const (
	NodeTypeTrigger    NodeType = "trigger"
	NodeTypeAIModel    NodeType = "aiModel"
	NodeTypeOutput     NodeType = "output"
	NodeTypePost       NodeType = "post"
	NodeTypeResearch   NodeType = "research"
	NodeTypeUnsplash   NodeType = "unsplash"
	NodeTypeChat       NodeType = "chat"
	NodeTypeRSS        NodeType = "rss"
	NodeTypeAPICall    NodeType = "apiCall"
	NodeTypeCondition  NodeType = "condition"
	NodeTypeHumanInput NodeType = "humanInput"
	NodeTypeFirecrawl  NodeType = "firecrawl"

	NodeTypeTextAnnotation NodeType = "textAnnotation"
	NodeTypeStickyNote     NodeType = "stickyNote"
	NodeTypeShape          NodeType = "shape"
)

// IsAnnotation reports whether nodes of this type are purely visual.
func (t NodeType) IsAnnotation() bool {
	switch t {
	case NodeTypeTextAnnotation, NodeTypeStickyNote, NodeTypeShape:
		return true
	}

	return false
}

type TriggerType string

const (
	TriggerTypeManual         TriggerType = "manual"
	TriggerTypeWebhook        TriggerType = "webhook"
	TriggerTypeRSS            TriggerType = "rss"
	TriggerTypeWPCore         TriggerType = "wpCore"
	TriggerTypeWorkflowOutput TriggerType = "workflowOutput"
	TriggerTypeGravityForms   TriggerType = "gravityForms"
	TriggerTypeContactForm7   TriggerType = "contactForm7"
	TriggerTypeWPForms        TriggerType = "wpForms"
	TriggerTypeNinjaForms     TriggerType = "ninjaForms"
	TriggerTypeFluentForms    TriggerType = "fluentForms"
)

func (t TriggerType) IsForm() bool {
	switch t {
	case TriggerTypeGravityForms, TriggerTypeContactForm7, TriggerTypeWPForms, TriggerTypeNinjaForms, TriggerTypeFluentForms:
		return true
	}

	return false
}

// Handles used on branching nodes.
const (
	HandleTrue    = "true"
	HandleFalse   = "false"
	HandleApprove = "approve"
	HandleRevert  = "revert"
)

// HumanAction is the decision recorded when resuming a paused humanInput node.
type HumanAction string

const (
	HumanActionApprove HumanAction = "approve"
	HumanActionRevert  HumanAction = "revert"
)

func (a HumanAction) IsValid() bool {
	return a == HumanActionApprove || a == HumanActionRevert
}
