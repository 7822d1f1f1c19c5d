package command_router

// english lists longer phrases before the shorter phrases they contain.
var english = []Entry{
	{Phrase: "hey chair recliner down", Command: CommandHeyChairReclinerDown},
	{Phrase: "hey chair recliner lower", Command: CommandHeyChairReclinerDown},
	{Phrase: "hey chair recliner up", Command: CommandHeyChairReclinerUp},
	{Phrase: "hey chair recliner raise", Command: CommandHeyChairReclinerUp},
	{Phrase: "hey chair stop", Command: CommandStop},
	{Phrase: "hey chair", Command: CommandHeyChair},
	{Phrase: "address chair", Command: CommandHeyChair},
	{Phrase: "check internet", Command: CommandCheckInternet},
	{Phrase: "hey bird", Command: CommandHeyBird},
	{Phrase: "recliner raise", Command: CommandReclinerUp},
	{Phrase: "recliner lower", Command: CommandReclinerDown},
	{Phrase: "recliner up", Command: CommandReclinerUp},
	{Phrase: "recliner down", Command: CommandReclinerDown},
	{Phrase: "raise", Command: CommandReclinerUp},
	{Phrase: "lower", Command: CommandReclinerDown},
	{Phrase: "stop", Command: CommandStop},
}
