package config

type WorkerKeyStruct struct {
	PersistAnswersQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue: "study_persist_answers_queue",
}
