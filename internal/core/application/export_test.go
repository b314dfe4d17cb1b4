package application

func (s *ExecutorService) SubscriberCount(id string) int {
	h, err := s.getHandle(id)
	if err != nil {
		return 0
	}
	h.broadcaster.lock.Lock()
	defer h.broadcaster.lock.Unlock()
	return len(h.broadcaster.subscribers)
}
