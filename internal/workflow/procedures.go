package workflow

// ProcedureFamily lists the candidate backend entry points for one document
// family. Names and argument field names vary across deployments, so they
// are configuration data consumed by the dispatcher, not fixed contract.
type ProcedureFamily struct {
	Name    string
	Submit  []string
	Edit    []string
	Delete  []string
	Approve []string
	Reject  []string
}

// Candidates returns the candidate names for one operation.
func (f ProcedureFamily) Candidates(op Operation) []string {
	switch op {
	case OpCreate:
		return f.Submit
	case OpEdit:
		return f.Edit
	case OpDelete:
		return f.Delete
	default:
		return nil
	}
}

// YarnPurchaseFamily is the default candidate set for yarn purchase receipts.
func YarnPurchaseFamily() ProcedureFamily {
	return ProcedureFamily{
		Name:   "yarn_purchase",
		Submit: []string{"submit_yarn_purchase_request"},
		Edit: []string{
			"submit_yarn_purchase_edit",
			"submit_yarn_purchase_edit_request",
			"submit_yarn_purchase_update",
			"request_yarn_purchase_edit",
		},
		Delete: []string{
			"submit_yarn_purchase_delete",
			"submit_yarn_purchase_delete_request",
			"request_yarn_purchase_delete",
		},
		Approve: []string{
			"confirm_change_request",
			"approve_change_request",
			"approve_yarn_purchase_request",
			"approve_yarn_purchase_change_request",
		},
		Reject: []string{
			"reject_change_request",
			"reject_yarn_purchase_request",
			"reject_yarn_purchase_change_request",
		},
	}
}

// GreigeReceiptFamily is the default candidate set for greige receipts.
func GreigeReceiptFamily() ProcedureFamily {
	return ProcedureFamily{
		Name:    "greige_receipt",
		Submit:  []string{"submit_greige_receipt_request"},
		Edit:    []string{"submit_greige_receipt_edit", "request_greige_receipt_edit"},
		Delete:  []string{"request_delete_greige_receipt", "submit_greige_receipt_delete"},
		Approve: []string{"approve_greige_receipt_request", "confirm_change_request", "approve_change_request"},
		Reject:  []string{"reject_greige_receipt_request", "reject_change_request"},
	}
}

// payloadShapes enumerates the argument field names used by the submit
// wrappers across deployments, in probe order.
func payloadShapes(payload map[string]any) []map[string]any {
	return []map[string]any{
		{"payload": payload},
		{"p_payload": payload},
		{"data": payload},
		{"p_data": payload},
	}
}

// idShapes enumerates the argument field names for approve calls.
func idShapes(id string) []map[string]any {
	return []map[string]any{
		{"p_id": id},
		{"id": id},
		{"p_change_request_id": id},
		{"change_request_id": id},
	}
}

// rejectShapes mirrors idShapes with an optional reason argument.
func rejectShapes(id, reason string) []map[string]any {
	if reason == "" {
		return idShapes(id)
	}
	return []map[string]any{
		{"p_id": id, "p_reason": reason},
		{"id": id, "reason": reason},
		{"p_change_request_id": id, "p_reason": reason},
		{"change_request_id": id, "reason": reason},
	}
}
