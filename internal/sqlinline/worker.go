package sqlinline

const QWorkerClaimRequest = `--sql 973e5eca-291f-4dd3-97c2-893f11eec960
with next_request as (
    select id
    from generation_requests
    where status = 'pending'
    order by created_at asc
    for update skip locked
    limit 1
)
update generation_requests
set status = 'processing',
    progress = 0,
    started_at = now(),
    updated_at = now()
where id in (select id from next_request)
returning id, user_id, kind, status, progress, prompt, source_image_url, aspect_ratio, quantity, style, provider,
  result_url, result_json, refined_prompt, error_message, fallback, attempts, created_at, updated_at, started_at, completed_at;
`

const QWorkerRequeueStale = `--sql 5e3bbedd-98db-4385-a2d5-01a1569877a7
update generation_requests
set status = case when attempts + 1 >= $2::int then 'failed' else 'pending' end,
    attempts = attempts + 1,
    progress = 0,
    error_message = case when attempts + 1 >= $2::int then 'processing timed out' else '' end,
    completed_at = case when attempts + 1 >= $2::int then now() else null end,
    updated_at = now()
where status = 'processing'
  and updated_at < now() - make_interval(secs => $1::int)
returning id, user_id, kind, status, progress, prompt, source_image_url, aspect_ratio, quantity, style, provider,
  result_url, result_json, refined_prompt, error_message, fallback, attempts, created_at, updated_at, started_at, completed_at;
`

const QNotifyRequestEvent = `--sql da7e154d-ce14-4980-b66d-d9a1f36fb9ec
select pg_notify('request_events', $1::text);
`
