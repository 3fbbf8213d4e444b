package model

// Pipeline step names
const (
	StepExtractFrames    = "extract_frames"
	StepDetectScenes     = "detect_scenes"
	StepTrackObjects     = "track_objects"
	StepClassifyContent  = "classify_content"
	StepAggregateResults = "aggregate_results"
)

// PipelineStage describes one stage of an analysis pipeline. Weight is the
// stage's share of overall progress; the weights of a pipeline sum to 100.
type PipelineStage struct {
	Name   string
	Weight int
	Detail string
}

// Pipeline returns the ordered stages for a profile.
func Pipeline(profile AnalysisProfile) []PipelineStage {
	switch profile {
	case ProfileFast:
		return []PipelineStage{
			{Name: StepExtractFrames, Weight: 30, Detail: "Extracting frames..."},
			{Name: StepDetectScenes, Weight: 50, Detail: "Detecting scene boundaries..."},
			{Name: StepAggregateResults, Weight: 20, Detail: "Aggregating results..."},
		}
	case ProfileDeep:
		return []PipelineStage{
			{Name: StepExtractFrames, Weight: 15, Detail: "Extracting frames..."},
			{Name: StepDetectScenes, Weight: 20, Detail: "Detecting scene boundaries..."},
			{Name: StepTrackObjects, Weight: 30, Detail: "Tracking objects across frames..."},
			{Name: StepClassifyContent, Weight: 20, Detail: "Classifying content..."},
			{Name: StepAggregateResults, Weight: 15, Detail: "Aggregating results..."},
		}
	default: // standard
		return []PipelineStage{
			{Name: StepExtractFrames, Weight: 20, Detail: "Extracting frames..."},
			{Name: StepDetectScenes, Weight: 30, Detail: "Detecting scene boundaries..."},
			{Name: StepTrackObjects, Weight: 35, Detail: "Tracking objects across frames..."},
			{Name: StepAggregateResults, Weight: 15, Detail: "Aggregating results..."},
		}
	}
}

// PendingSteps builds the initial step list for a job from its pipeline.
func PendingSteps(profile AnalysisProfile) []Step {
	stages := Pipeline(profile)
	steps := make([]Step, len(stages))
	for i, st := range stages {
		steps[i] = Step{Name: st.Name, Status: StepStatusPending}
	}
	return steps
}
