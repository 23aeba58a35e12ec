package domain

type ConnManager interface {
	StreamAPI() FeedSocket
	SyncAPI() ProviderSyncAPI
}
