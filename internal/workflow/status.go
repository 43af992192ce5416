package workflow

// DeriveStatus 根据当前步骤计算记录状态（纯函数）
func DeriveStatus(r *IdeaRecord) Status {
	switch r.CurrentStep {
	case StepEditor:
		return StatusVisualsGenerated
	case StepPublish:
		switch r.PublishOutcome {
		case StatusScheduled, StatusPosted:
			return r.PublishOutcome
		}
		return StatusCompletedDraft
	}
	if r.HasText() {
		return StatusGenerated
	}
	return StatusDraft
}

// NextStep 当前步骤之后的前进目标；没有格式使用 AI 生成时跳过 ai_generation
func NextStep(r *IdeaRecord) (Step, bool) {
	i := r.CurrentStep.index()
	if i < 0 || i == len(Steps)-1 {
		return "", false
	}
	next := Steps[i+1]
	if next == StepAIGeneration && !r.UsesAIGeneration() {
		next = StepEditor
	}
	return next, true
}

// CanEnter 判断是否可以直接进入目标步骤：已访问过的步骤或下一步
func CanEnter(r *IdeaRecord, target Step) bool {
	if !target.Valid() {
		return false
	}
	if target == r.CurrentStep {
		return true
	}
	for _, s := range r.VisitedSteps {
		if s == target {
			return true
		}
	}
	next, ok := NextStep(r)
	return ok && next == target
}
