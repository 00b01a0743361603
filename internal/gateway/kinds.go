package gateway

// Read request kinds understood by the content/user-data service.
const (
	KindContentData        = "contentData"
	KindUserData           = "userData"
	KindLeaderboard        = "leaderboard"
	KindIncorrectQuestions = "getIncorrectQuestions"
	KindAllUserPlans       = "getAllUserPlans"
	KindReviewQuiz         = "reviewQuiz"
	KindUserCardData       = "getUserCardData"
	KindMessages           = "getMessages"
)

// Write event types.
const (
	EventLogin               = "login"
	EventAdminLogin          = "adminLogin"
	EventRegisterUser        = "registerUser"
	EventFinishQuiz          = "FinishQuiz"
	EventFinishMatchingQuiz  = "FinishMatchingQuiz"
	EventFinishOSCEQuiz      = "FinishOSCEQuiz"
	EventViewLecture         = "ViewLecture"
	EventSaveTheoryLog       = "saveTheoryLog"
	EventLogIncorrectAnswer  = "logIncorrectAnswer"
	EventLogCorrectedMistake = "logCorrectedMistake"
	EventSaveQuizNote        = "saveQuizNote"
	EventSaveLectureNote     = "saveLectureNote"
	EventDeleteQuizNote      = "deleteQuizNote"
	EventDeleteLectureNote   = "deleteLectureNote"
	EventClearQuizLogs       = "clearQuizLogs"
	EventClearLectureLogs    = "clearLectureLogs"
	EventClearAllLogs        = "clearAllLogs"
	EventCreateStudyPlan     = "createStudyPlan"
	EventUpdateStudyPlan     = "updateStudyPlan"
	EventActivateStudyPlan   = "activateStudyPlan"
	EventSendMessage         = "sendMessage"
	EventUpdateUserCardData  = "updateUserCardData"
	EventAdminUpdateUser     = "admin_updateUser"
)
