// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package handoff

// process variables read and written around the handoff
const (
	VarDefaultScore = "defaultScore"
	VarScore        = "score"
	VarCreditScores = "creditScores"

	// CreditScoresObjectType is the object type the engine deserializes creditScores into
	CreditScoresObjectType = "java.util.ArrayList"
)
